package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visioninhope/tiledesk-whatsapp-connector/config"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/db"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/events"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/services"
)

type fakeWhatsapp struct {
	mu           sync.Mutex
	sent         []*whatsapp.OutboundMessage
	phoneIDs     []string
	failErr      error
	templates    *whatsapp.TemplateList
	templatesErr error
}

func (f *fakeWhatsapp) SendMessage(_ context.Context, _, phoneNumberID string, msg *whatsapp.OutboundMessage) (*whatsapp.SendMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	f.phoneIDs = append(f.phoneIDs, phoneNumberID)
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &whatsapp.SendMessageResponse{}, nil
}

func (f *fakeWhatsapp) GetTemplates(_ context.Context, _, _ string) (*whatsapp.TemplateList, error) {
	if f.templatesErr != nil {
		return nil, f.templatesErr
	}
	return f.templates, nil
}

func (f *fakeWhatsapp) messages() []*whatsapp.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*whatsapp.OutboundMessage(nil), f.sent...)
}

type tdCall struct {
	msg          *tiledesk.Message
	info         tiledesk.MessageInfo
	departmentID string
}

type fakeTiledesk struct {
	mu      sync.Mutex
	calls   []tdCall
	failErr error
}

func (f *fakeTiledesk) Send(_ context.Context, _ *models.ChannelSettings, msg *tiledesk.Message, info tiledesk.MessageInfo, departmentID string) (*tiledesk.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tdCall{msg: msg, info: info, departmentID: departmentID})
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &tiledesk.SentMessage{ID: "m1", RequestID: "support-group-p1-x"}, nil
}

type fakeMedia struct {
	calls int
	err   error
}

func (f *fakeMedia) Relay(_ context.Context, _ *models.ChannelSettings, media *whatsapp.MediaContent, category string) (*models.MediaReference, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.MediaReference{RemoteID: media.ID, HostedURL: "https://api.test/" + category + "/" + media.ID}, nil
}

type fakeSettings map[string]*models.ChannelSettings

func (f fakeSettings) Get(_ context.Context, projectID string) (*models.ChannelSettings, error) {
	s, ok := f[projectID]
	if !ok {
		return nil, db.ErrSettingsNotFound
	}
	return s, nil
}

type fakeEphemeral struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeEphemeral) SetEx(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
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

type fakePublisher struct {
	mu    sync.Mutex
	types []string
}

func (f *fakePublisher) Publish(_ context.Context, eventType, _ string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	return nil
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.types...)
}

type testEnv struct {
	wa        *fakeWhatsapp
	td        *fakeTiledesk
	media     *fakeMedia
	settings  fakeSettings
	pub       *fakePublisher
	sequencer *services.Sequencer
	registrar *services.Registrar
	router    *mux.Router
}

func newTestEnv(t *testing.T, withRedis bool) *testEnv {
	t.Helper()
	env := &testEnv{
		wa:    &fakeWhatsapp{},
		td:    &fakeTiledesk{},
		media: &fakeMedia{},
		settings: fakeSettings{
			"p1": {ProjectID: "p1", WabToken: "wab-token", VerifyToken: "verify-me", BusinessAccountID: "ba1", DepartmentID: "dep-1"},
		},
		pub: &fakePublisher{},
	}

	var store services.EphemeralStore
	if withRedis {
		store = &fakeEphemeral{data: map[string][]byte{}}
	}
	env.sequencer = services.NewSequencer(env.wa, env.pub, time.Second, time.Minute)
	env.registrar = services.NewRegistrar(store, env.pub)

	h := New(Deps{
		Config:    &config.Config{SendTimeout: time.Second},
		Settings:  env.settings,
		Whatsapp:  env.wa,
		Tiledesk:  env.td,
		Media:     env.media,
		Sequencer: env.sequencer,
		Registrar: env.registrar,
		Tester:    services.NewBotTester(env.registrar, env.settings, env.td, env.pub),
		Publisher: env.pub,
	})
	env.router = mux.NewRouter()
	h.Routes(env.router)
	return env
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

const recipient = "support-group-p1-ab12cd34-wab-10001-391234"

func tiledeskEvent(msg map[string]any) map[string]any {
	msg["id_project"] = "p1"
	if _, ok := msg["recipient"]; !ok {
		msg["recipient"] = recipient
	}
	if _, ok := msg["sender"]; !ok {
		msg["sender"] = "agent-42"
	}
	return map[string]any{"payload": msg}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestTiledeskWebhookForward(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/tiledesk", tiledeskEvent(map[string]any{"text": "hello"}))
	assert.Equal(t, http.StatusOK, rec.Code)

	sent := env.wa.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "391234", sent[0].To)
	assert.Equal(t, "hello", sent[0].Text.Body)
	assert.Equal(t, []string{"10001"}, env.wa.phoneIDs)
	assert.Contains(t, env.pub.published(), events.EventOutboundMessage)
}

func TestTiledeskWebhookSkips(t *testing.T) {
	tests := []struct {
		name string
		msg  map[string]any
	}{
		{"self echo", map[string]any{"text": "hi", "sender": "wab-391234"}},
		{"info", map[string]any{"text": "joined", "attributes": map[string]any{"subtype": "info"}}},
		{"info/support", map[string]any{"text": "closed", "attributes": map[string]any{"subtype": "info/support"}}},
		{"nothing to send", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			rec := env.do(http.MethodPost, "/tiledesk", tiledeskEvent(tt.msg))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, env.wa.messages())
			assert.Empty(t, env.td.calls)
		})
	}
}

func TestTiledeskWebhookNoSettings(t *testing.T) {
	env := newTestEnv(t, false)
	delete(env.settings, "p1")

	rec := env.do(http.MethodPost, "/tiledesk", tiledeskEvent(map[string]any{"text": "hello"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.wa.messages())
}

func TestTiledeskWebhookExpired(t *testing.T) {
	env := newTestEnv(t, false)
	env.settings["p1"].Expired = true

	rec := env.do(http.MethodPost, "/tiledesk", tiledeskEvent(map[string]any{"text": "hello"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.wa.messages())

	require.Len(t, env.td.calls, 1)
	notice := env.td.calls[0]
	assert.Equal(t, services.ExpiredNoticeText, notice.msg.Text)
	assert.Equal(t, "System", notice.msg.SenderFullname)
	assert.Equal(t, "391234", notice.info.Whatsapp.From)
	assert.Equal(t, "10001", notice.info.Whatsapp.PhoneNumberID)
	assert.Equal(t, "dep-1", notice.departmentID)
	assert.Contains(t, env.pub.published(), events.EventExpiredNotice)
}

func TestTiledeskWebhookSendFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.wa.failErr = errors.New("(#132001) Template name does not exist")

	rec := env.do(http.MethodPost, "/tiledesk", tiledeskEvent(map[string]any{"text": "hello"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "il template non esiste", resp.Error)
	assert.Contains(t, env.pub.published(), events.EventOutboundFailed)
}

func TestTiledeskWebhookUntranslatable(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/tiledesk", tiledeskEvent(map[string]any{"metadata": map[string]any{}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "il template non esiste", decodeError(t, rec).Error)
	assert.Empty(t, env.wa.messages())
}

func TestTiledeskWebhookSequence(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/tiledesk", tiledeskEvent(map[string]any{
		"sender": "bot_1",
		"attributes": map[string]any{"commands": []any{
			map[string]any{"type": "wait", "time": 20},
			map[string]any{"type": "message", "message": map[string]any{"text": "A"}},
			map[string]any{"type": "message", "message": map[string]any{"text": "B"}},
		}},
	}))
	assert.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.sequencer.Wait(ctx))

	sent := env.wa.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "A", sent[0].Text.Body)
	assert.Equal(t, "B", sent[1].Text.Body)
	assert.Equal(t, "391234", sent[0].To)
}

func TestTiledeskWebhookInvalidBody(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(http.MethodPost, "/tiledesk", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func whatsappNotification(message map[string]any) map[string]any {
	return map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "ba1",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"metadata":          map[string]any{"display_phone_number": "15550001", "phone_number_id": "10001"},
					"contacts":          []any{map[string]any{"wa_id": "391234", "profile": map[string]any{"name": "Mario"}}},
					"messages":          []any{message},
				},
			}},
		}},
	}
}

func textMessage(id, body string) map[string]any {
	return map[string]any{"from": "391234", "id": id, "type": "text", "text": map[string]any{"body": body}}
}

func TestWhatsappWebhookText(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(textMessage("wamid.1", "ciao")))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.td.calls, 1)
	call := env.td.calls[0]
	assert.Equal(t, "ciao", call.msg.Text)
	assert.Equal(t, "Mario", call.msg.SenderFullname)
	assert.Equal(t, "whatsapp", call.info.Channel)
	assert.Equal(t, "391234", call.info.Whatsapp.From)
	assert.Equal(t, "10001", call.info.Whatsapp.PhoneNumberID)
	assert.Equal(t, "Mario", call.info.Whatsapp.Firstname)
	assert.Equal(t, " ", call.info.Whatsapp.Lastname)
	assert.Equal(t, "dep-1", call.departmentID)
	assert.Contains(t, env.pub.published(), events.EventInboundMessage)
}

func TestWhatsappWebhookWithoutObject(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(http.MethodPost, "/webhook/p1", map[string]any{"entry": []any{}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWhatsappWebhookIgnored(t *testing.T) {
	statusOnly := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{"changes": []any{map[string]any{"value": map[string]any{
			"statuses": []any{map[string]any{"id": "wamid.1", "status": "read"}},
		}}}}},
	}

	tests := []struct {
		name    string
		project string
		body    map[string]any
	}{
		{"status update", "p1", statusOnly},
		{"system message", "p1", whatsappNotification(map[string]any{"from": "391234", "id": "wamid.2", "type": "system"})},
		{"unknown project", "p9", whatsappNotification(textMessage("wamid.3", "ciao"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			rec := env.do(http.MethodPost, "/webhook/"+tt.project, tt.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, env.td.calls)
		})
	}
}

func TestWhatsappWebhookDuplicate(t *testing.T) {
	env := newTestEnv(t, false)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(textMessage("wamid.dup", "ciao")))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, env.td.calls, 1)
}

func TestWhatsappWebhookMediaDownloadFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.media.err = services.ErrMediaDownload

	image := map[string]any{"from": "391234", "id": "wamid.img", "type": "image",
		"image": map[string]any{"id": "media-1", "mime_type": "image/jpeg"}}

	rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(image))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "unable to download media", resp.Error)
	assert.Empty(t, env.td.calls)
	assert.Contains(t, env.pub.published(), events.EventMediaFailed)

	// a retried notification is processed again
	rec = env.do(http.MethodPost, "/webhook/p1", whatsappNotification(image))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 2, env.media.calls)
}

type flakyGraphMedia struct {
	lookups int
	failErr error
}

func (f *flakyGraphMedia) GetMediaInfo(_ context.Context, _, mediaID string) (*whatsapp.MediaInfo, error) {
	f.lookups++
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &whatsapp.MediaInfo{URL: "https://lookaside.test/" + mediaID, MimeType: "image/jpeg"}, nil
}

func (f *flakyGraphMedia) DownloadMedia(_ context.Context, _, _ string, w io.Writer) (int64, error) {
	n, err := io.WriteString(w, "JPEGDATA")
	return int64(n), err
}

type hostedAssets struct{}

func (hostedAssets) Upload(_ context.Context, _ *models.ChannelSettings, category, fileName string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "https://api.test/" + category + "/" + fileName, nil
}

func TestWhatsappWebhookMediaRedeliveryAfterGraphOutage(t *testing.T) {
	env := newTestEnv(t, false)
	graph := &flakyGraphMedia{failErr: &whatsapp.StatusError{Op: "media lookup media-1", StatusCode: http.StatusServiceUnavailable}}
	relay := services.NewMediaRelay(graph, hostedAssets{}, nil, t.TempDir())

	env.router = mux.NewRouter()
	New(Deps{
		Config:    &config.Config{SendTimeout: time.Second},
		Settings:  env.settings,
		Whatsapp:  env.wa,
		Tiledesk:  env.td,
		Media:     relay,
		Publisher: env.pub,
	}).Routes(env.router)

	image := map[string]any{"from": "391234", "id": "wamid.img", "type": "image",
		"image": map[string]any{"id": "media-1", "mime_type": "image/jpeg"}}

	rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(image))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.td.calls)

	// Graph recovers before WhatsApp redelivers the notification
	graph.failErr = nil
	rec = env.do(http.MethodPost, "/webhook/p1", whatsappNotification(image))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, graph.lookups)

	require.Len(t, env.td.calls, 1)
	msg := env.td.calls[0].msg
	require.NotNil(t, msg.Metadata)
	assert.True(t, strings.HasPrefix(msg.Metadata.Src, "https://api.test/images/"), msg.Metadata.Src)
}

func TestWhatsappWebhookMediaUploadFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.media.err = services.ErrMediaUpload

	doc := map[string]any{"from": "391234", "id": "wamid.doc", "type": "document",
		"document": map[string]any{"id": "media-2", "mime_type": "application/pdf", "filename": "invoice.pdf"}}

	rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(doc))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.td.calls)
}

func TestWhatsappWebhookMedia(t *testing.T) {
	env := newTestEnv(t, false)

	image := map[string]any{"from": "391234", "id": "wamid.img", "type": "image",
		"image": map[string]any{"id": "media-1", "mime_type": "image/jpeg", "caption": "look"}}

	rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(image))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.td.calls, 1)
	msg := env.td.calls[0].msg
	assert.Equal(t, "image", msg.Type)
	assert.Equal(t, "look", msg.Text)
	require.NotNil(t, msg.Metadata)
	assert.Equal(t, "https://api.test/images/media-1", msg.Metadata.Src)
	assert.Contains(t, env.pub.published(), events.EventMediaRelayed)
}

func TestWhatsappWebhookBotTest(t *testing.T) {
	env := newTestEnv(t, true)
	shortID, err := env.registrar.Create(context.Background(), "p1", "bot-9")
	require.NoError(t, err)

	rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(textMessage("wamid.td", "#td"+shortID)))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.td.calls, 1)
	msg := env.td.calls[0].msg
	assert.Equal(t, "/start", msg.Text)
	assert.Equal(t, []string{"bot_bot-9"}, msg.Participants)
}

func TestWhatsappWebhookBotTestUnknownSession(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodPost, "/webhook/p1", whatsappNotification(textMessage("wamid.td", "#tdffffffff")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.td.calls, "a #td text is never forwarded as a message")
}

func TestVerifyWebhook(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   int
		body   string
	}{
		{"verified", "/webhook/p1?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"wrong token", "/webhook/p1?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", http.StatusForbidden, ""},
		{"wrong mode", "/webhook/p1?hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusForbidden, ""},
		{"no settings", "/webhook/p9?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusForbidden, ""},
		{"missing token", "/webhook/p1?hub.mode=subscribe&hub.challenge=1", http.StatusBadRequest, verifyUndefinedText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			rec := env.do(http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, strings.TrimSpace(rec.Body.String()))
			}
		})
	}
}

func TestNewTest(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodPost, "/newtest", map[string]string{"project_id": "p1", "bot_id": "bot-9"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp newTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.ShortUID, 8)

	session, err := env.registrar.Lookup(context.Background(), resp.ShortUID)
	require.NoError(t, err)
	assert.Equal(t, "bot-9", session.BotID)
}

func TestNewTestWithoutRedis(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/newtest", map[string]string{"project_id": "p1", "bot_id": "bot-9"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Redis not ready")
}

func TestNewTestMissingFields(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(http.MethodPost, "/newtest", map[string]string{"project_id": "p1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestQRCode(t *testing.T) {
	env := newTestEnv(t, true)
	shortID, err := env.registrar.Create(context.Background(), "p1", "bot-9")
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/newtest/"+shortID+"/qr?phone=%2B15550001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = env.do(http.MethodGet, "/newtest/"+shortID+"/qr", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/newtest/ffffffff/qr?phone=15550001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplates(t *testing.T) {
	env := newTestEnv(t, false)
	env.wa.templates = &whatsapp.TemplateList{Data: []whatsapp.MessageTemplate{{ID: "t1", Name: "hello_world", Language: "en_US"}}}

	rec := env.do(http.MethodGet, "/ext/templates/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []whatsapp.MessageTemplate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "hello_world", list[0].Name)

	rec = env.do(http.MethodGet, "/ext/templates/p9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"01"`)

	env.wa.templatesErr = errors.New("invalid token")
	rec = env.do(http.MethodGet, "/ext/templates/p1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"02"`)
}

func TestDirectTemplate(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodGet, "/direct/tiledesk?project_id=p1&whatsapp_receiver=391234&phone_number_id=10001", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	sent := env.wa.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, whatsapp.TypeTemplate, sent[0].Type)
	assert.Equal(t, "hello_world", sent[0].Template.Name)
	assert.Equal(t, "en_US", sent[0].Template.Language.Code)
}

func TestSequencesEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodGet, "/sequences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.EqualValues(t, 0, status["running"])
	assert.EqualValues(t, 60000, status["max_wait_ms"])

	rec = env.do(http.MethodGet, "/sequences/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWelcomeAndHealth(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodGet, "/", nil)
	assert.Equal(t, welcomeText, rec.Body.String())

	rec = env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"bot_testing":false`)
}
