// Package handlers exposes the connector's HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/config"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/services"
	"github.com/visioninhope/tiledesk-whatsapp-connector/pkg/httputil"
)

// seenMessageTTL bounds how long a WhatsApp message id is remembered for
// duplicate suppression.
const seenMessageTTL = time.Hour

// WhatsappAPI is the part of the Graph client used by the handlers.
type WhatsappAPI interface {
	services.WhatsappSender
	GetTemplates(ctx context.Context, token, businessAccountID string) (*whatsapp.TemplateList, error)
}

// MediaRelayer re-hosts inbound media.
type MediaRelayer interface {
	Relay(ctx context.Context, settings *models.ChannelSettings, media *whatsapp.MediaContent, category string) (*models.MediaReference, error)
}

// Deps groups the collaborators of the handlers.
type Deps struct {
	Config    *config.Config
	Settings  services.SettingsReader
	Whatsapp  WhatsappAPI
	Tiledesk  services.TiledeskSender
	Media     MediaRelayer
	Sequencer *services.Sequencer
	Registrar *services.Registrar
	Tester    *services.BotTester
	Publisher services.EventPublisher
}

// Handler serves the webhook and utility endpoints.
type Handler struct {
	cfg       *config.Config
	settings  services.SettingsReader
	whatsapp  WhatsappAPI
	tiledesk  services.TiledeskSender
	media     MediaRelayer
	sequencer *services.Sequencer
	registrar *services.Registrar
	tester    *services.BotTester
	publisher services.EventPublisher
	seen      *cache.Cache

	sendTimeout time.Duration
}

func New(deps Deps) *Handler {
	if deps.Config == nil || deps.Settings == nil || deps.Whatsapp == nil || deps.Tiledesk == nil {
		log.Fatal().Msg("Handler requires config, settings, whatsapp and tiledesk dependencies")
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}
	sendTimeout := deps.Config.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = httputil.DefaultTimeout
	}
	return &Handler{
		cfg:       deps.Config,
		settings:  deps.Settings,
		whatsapp:  deps.Whatsapp,
		tiledesk:  deps.Tiledesk,
		media:     deps.Media,
		sequencer: deps.Sequencer,
		registrar: deps.Registrar,
		tester:    deps.Tester,
		publisher: publisher,
		seen:      cache.New(seenMessageTTL, 10*time.Minute),

		sendTimeout: sendTimeout,
	}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/", h.Welcome()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health()).Methods(http.MethodGet)

	r.HandleFunc("/tiledesk", h.TiledeskWebhook()).Methods(http.MethodPost)
	r.HandleFunc("/webhook/{project_id}", h.WhatsappWebhook()).Methods(http.MethodPost)
	r.HandleFunc("/webhook/{project_id}", h.VerifyWebhook()).Methods(http.MethodGet)

	r.HandleFunc("/newtest", h.NewTest()).Methods(http.MethodPost)
	r.HandleFunc("/newtest/{short_id}/qr", h.TestQRCode()).Methods(http.MethodGet)

	r.HandleFunc("/direct/tiledesk", h.DirectTemplate()).Methods(http.MethodGet)
	r.HandleFunc("/ext/templates/{project_id}", h.Templates()).Methods(http.MethodGet)

	r.HandleFunc("/sequences", h.SequencesStatus()).Methods(http.MethodGet)
	r.HandleFunc("/sequences/{id}", h.SequenceStatus()).Methods(http.MethodGet)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, errorResponse{Success: false, Error: message})
}

// sendContext detaches downstream calls from the inbound request and bounds them.
func (h *Handler) sendContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.sendTimeout)
}

func (h *Handler) publish(ctx context.Context, eventType, projectID string, event any) {
	_ = h.publisher.Publish(ctx, eventType, projectID, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }
