// Package services holds the bridge logic between the two platform adapters.
package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

var (
	ErrMediaDownload      = errors.New("unable to download media")
	ErrMediaUpload        = errors.New("unable to upload media")
	ErrSendFailed         = errors.New("send failed")
	ErrTestingUnavailable = errors.New("bot testing unavailable")
	ErrSessionNotFound    = errors.New("test session not found")
)

// WhatsappSender sends formatted messages through the Cloud API.
type WhatsappSender interface {
	SendMessage(ctx context.Context, token, phoneNumberID string, msg *whatsapp.OutboundMessage) (*whatsapp.SendMessageResponse, error)
}

// MediaSource resolves and downloads WhatsApp media.
type MediaSource interface {
	GetMediaInfo(ctx context.Context, token, mediaID string) (*whatsapp.MediaInfo, error)
	DownloadMedia(ctx context.Context, token, mediaURL string, w io.Writer) (int64, error)
}

// TiledeskSender posts messages to the Tiledesk conversation of a WhatsApp user.
type TiledeskSender interface {
	Send(ctx context.Context, settings *models.ChannelSettings, msg *tiledesk.Message, info tiledesk.MessageInfo, departmentID string) (*tiledesk.SentMessage, error)
}

// AssetUploader hosts files on the Tiledesk asset API.
type AssetUploader interface {
	Upload(ctx context.Context, settings *models.ChannelSettings, category, fileName string, r io.Reader) (string, error)
}

// ObjectUploader hosts files on an object store.
type ObjectUploader interface {
	Upload(ctx context.Context, key string, body io.Reader, mimeType string) (string, error)
}

// EventPublisher receives relay events. Implementations must not block the relay.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, projectID string, event any) error
}

// EphemeralStore is a key-value store with expiry.
type EphemeralStore interface {
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// SettingsReader loads the settings of a project.
type SettingsReader interface {
	Get(ctx context.Context, projectID string) (*models.ChannelSettings, error)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, any) error { return nil }

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
