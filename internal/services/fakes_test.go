package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/db"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

type sentCall struct {
	phoneNumberID string
	msg           *whatsapp.OutboundMessage
	at            time.Time
}

// fakeWhatsapp records sends; failOn makes the send of a given text body fail.
type fakeWhatsapp struct {
	mu     sync.Mutex
	calls  []sentCall
	failOn string
}

func (f *fakeWhatsapp) SendMessage(_ context.Context, _, phoneNumberID string, msg *whatsapp.OutboundMessage) (*whatsapp.SendMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{phoneNumberID: phoneNumberID, msg: msg, at: time.Now()})
	if f.failOn != "" && msg.Text != nil && msg.Text.Body == f.failOn {
		return nil, errors.New("graph error")
	}
	return &whatsapp.SendMessageResponse{}, nil
}

func (f *fakeWhatsapp) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

type fakeMediaSource struct {
	lookups int
	content string
	failErr error
}

func (f *fakeMediaSource) GetMediaInfo(_ context.Context, _, mediaID string) (*whatsapp.MediaInfo, error) {
	f.lookups++
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &whatsapp.MediaInfo{URL: "https://lookaside.test/" + mediaID, MimeType: "image/jpeg"}, nil
}

func (f *fakeMediaSource) DownloadMedia(_ context.Context, _, _ string, w io.Writer) (int64, error) {
	n, err := io.WriteString(w, f.content)
	return int64(n), err
}

type fakeUploader struct {
	uploads  []string
	data     []string
	failErr  error
	hostBase string
}

func (f *fakeUploader) Upload(_ context.Context, _ *models.ChannelSettings, category, fileName string, r io.Reader) (string, error) {
	f.uploads = append(f.uploads, category+"/"+fileName)
	b, _ := io.ReadAll(r)
	f.data = append(f.data, string(b))
	if f.failErr != nil {
		return "", f.failErr
	}
	return f.hostBase + "/" + category + "/" + fileName, nil
}

type fakeObjects struct {
	keys []string
}

func (f *fakeObjects) Upload(_ context.Context, key string, _ io.Reader, _ string) (string, error) {
	f.keys = append(f.keys, key)
	return "https://bucket.test/" + key, nil
}

type tdCall struct {
	settings     *models.ChannelSettings
	msg          *tiledesk.Message
	info         tiledesk.MessageInfo
	departmentID string
}

type fakeTiledesk struct {
	mu       sync.Mutex
	calls    []tdCall
	failErr  error
	noResult bool
}

func (f *fakeTiledesk) Send(_ context.Context, settings *models.ChannelSettings, msg *tiledesk.Message, info tiledesk.MessageInfo, departmentID string) (*tiledesk.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tdCall{settings: settings, msg: msg, info: info, departmentID: departmentID})
	if f.failErr != nil {
		return nil, f.failErr
	}
	if f.noResult {
		return nil, nil
	}
	return &tiledesk.SentMessage{ID: "m1", RequestID: "support-group-" + settings.ProjectID + "-x-wab-" + info.Whatsapp.PhoneNumberID + "-" + info.Whatsapp.From}, nil
}

type fakeEphemeral struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	setErr error
}

func newFakeEphemeral() *fakeEphemeral {
	return &fakeEphemeral{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeEphemeral) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeEphemeral) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

type fakeSettings map[string]*models.ChannelSettings

func (f fakeSettings) Get(_ context.Context, projectID string) (*models.ChannelSettings, error) {
	s, ok := f[projectID]
	if !ok {
		return nil, db.ErrSettingsNotFound
	}
	return s, nil
}

type recordedEvent struct {
	eventType string
	projectID string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakePublisher) Publish(_ context.Context, eventType, projectID string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType: eventType, projectID: projectID})
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.eventType)
	}
	return out
}
