// Package httputil provides the shared resty client used by the platform adapters.
package httputil

import (
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 15 * time.Second

// NewClient returns a resty client with the connector's common configuration.
// Retries are disabled: every failure is terminal for the triggering event.
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "tiledesk-whatsapp-connector")
	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}
	return client
}
