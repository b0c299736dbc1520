package whatsapp

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/buger/jsonparser"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/pkg/httputil"
)

// Client talks to the WhatsApp Cloud API (Graph). The access token is per project,
// so it is passed on every call instead of being bound to the client.
type Client struct {
	httpClient *resty.Client
	graphURL   string
}

// NewClient creates a new Graph API client rooted at graphURL (version included).
func NewClient(graphURL string, timeout time.Duration) (*Client, error) {
	if graphURL == "" {
		return nil, fmt.Errorf("WhatsApp graphURL cannot be empty")
	}

	log.Info().Str("graphURL", graphURL).Msg("WhatsApp client configured")
	return &Client{
		httpClient: httputil.NewClient(graphURL, timeout),
		graphURL:   graphURL,
	}, nil
}

// StatusError is returned when Graph answers a media request with an error status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("WhatsApp API %s error: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("WhatsApp API %s error: status %d, body: %s", e.Op, e.StatusCode, e.Body)
}

// Permanent reports whether repeating the request cannot succeed, as for a media
// id that expired or that the token may not read.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 408 && e.StatusCode != 429
}

// MediaInfo is the result of resolving a media id.
type MediaInfo struct {
	URL      string
	MimeType string
}

// SendMessage posts a formatted message from the given business phone number.
func (c *Client) SendMessage(ctx context.Context, token, phoneNumberID string, msg *OutboundMessage) (*SendMessageResponse, error) {
	url := phoneNumberID + "/messages"

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(msg).
		SetResult(&SendMessageResponse{}).
		SetError(&GraphError{}).
		Post(url)

	if err != nil {
		log.Error().Err(err).Str("phoneNumberID", phoneNumberID).Msg("WhatsApp API: SendMessage request failed")
		return nil, fmt.Errorf("WhatsApp API SendMessage request failed: %w", err)
	}

	if resp.IsError() {
		log.Error().
			Str("phoneNumberID", phoneNumberID).
			Int("statusCode", resp.StatusCode()).
			Str("responseBody", string(resp.Body())).
			Msg("WhatsApp API: SendMessage returned an error")
		return nil, fmt.Errorf("WhatsApp API SendMessage error: status %s, body: %s", resp.Status(), resp.String())
	}

	result := resp.Result().(*SendMessageResponse)
	log.Debug().Str("phoneNumberID", phoneNumberID).Int("status", resp.StatusCode()).Msg("Message sent to WhatsApp")
	return result, nil
}

// GetMediaInfo resolves a media id into a short-lived download URL.
func (c *Client) GetMediaInfo(ctx context.Context, token, mediaID string) (*MediaInfo, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(mediaID)
	if err != nil {
		return nil, fmt.Errorf("WhatsApp API media lookup request failed for %s: %w", mediaID, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Op: "media lookup " + mediaID, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	body := resp.Body()
	mediaURL, err := jsonparser.GetString(body, "url")
	if err != nil {
		return nil, fmt.Errorf("error reading media url from response: %w", err)
	}
	mimeType, _ := jsonparser.GetString(body, "mime_type")

	return &MediaInfo{URL: mediaURL, MimeType: mimeType}, nil
}

// DownloadMedia streams the media behind a lookup URL into w.
// The lookup URL requires the same bearer token as the API.
func (c *Client) DownloadMedia(ctx context.Context, token, mediaURL string, w io.Writer) (int64, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		Get(mediaURL)
	if err != nil {
		return 0, fmt.Errorf("WhatsApp media download request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return 0, &StatusError{Op: "media download", StatusCode: resp.StatusCode()}
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("failed to read WhatsApp media body: %w", err)
	}
	return n, nil
}

// GetTemplates lists the message templates of a business account.
func (c *Client) GetTemplates(ctx context.Context, token, businessAccountID string) (*TemplateList, error) {
	url := businessAccountID + "/message_templates"

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&TemplateList{}).
		Get(url)
	if err != nil {
		log.Error().Err(err).Str("businessAccountID", businessAccountID).Msg("WhatsApp API: GetTemplates request failed")
		return nil, fmt.Errorf("WhatsApp API GetTemplates request failed: %w", err)
	}
	if resp.IsError() {
		log.Error().
			Str("businessAccountID", businessAccountID).
			Int("statusCode", resp.StatusCode()).
			Str("responseBody", string(resp.Body())).
			Msg("WhatsApp API: GetTemplates returned an error")
		return nil, fmt.Errorf("WhatsApp API GetTemplates error: status %s, body: %s", resp.Status(), resp.String())
	}

	return resp.Result().(*TemplateList), nil
}
