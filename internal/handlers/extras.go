package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/translator"
)

const welcomeText = "Welcome to Tiledesk-WhatsApp Business connector!"

type templatesError struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Welcome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(welcomeText))
	}
}

func (h *Handler) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":          "ok",
			"bot_testing":     h.registrar.Available(),
			"media_relay":     h.media != nil,
			"event_publisher": h.publisherEnabled(),
		}
		if h.sequencer != nil {
			status["running_sequences"] = len(h.sequencer.Running())
		}
		h.respondWithJSON(w, http.StatusOK, status)
	}
}

// DirectTemplate sends the hello_world template to a WhatsApp number, which opens a
// conversation from the business side.
func (h *Handler) DirectTemplate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		projectID := q.Get("project_id")
		receiver := q.Get("whatsapp_receiver")
		phoneNumberID := q.Get("phone_number_id")

		if receiver == "" || phoneNumberID == "" {
			h.respondWithError(w, http.StatusBadRequest, "whatsapp_receiver and phone_number_id are required")
			return
		}
		settings := h.loadSettings(r.Context(), projectID)
		if settings == nil {
			h.respondWithError(w, http.StatusBadRequest, "whatsapp not installed for the project_id "+projectID)
			return
		}

		out := translator.ToWhatsapp(&tiledesk.Message{
			Text: "Sample text",
			Attributes: &tiledesk.Attributes{Attachment: &tiledesk.Attachment{
				Type:     tiledesk.AttachmentTemplate,
				Template: &tiledesk.Template{Name: "hello_world", Language: "en_US"},
			}},
		}, receiver)

		ctx, cancel := h.sendContext(r)
		defer cancel()
		if _, err := h.whatsapp.SendMessage(ctx, settings.WabToken, phoneNumberID, out); err != nil {
			log.Error().Err(err).Str("projectID", projectID).Msg("Failed to send template")
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		log.Info().Str("projectID", projectID).Str("receiver", receiver).Msg("Template sent to WhatsApp")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Message sent"))
	}
}

// Templates lists the message templates of the project's business account.
func (h *Handler) Templates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := mux.Vars(r)["project_id"]

		settings := h.loadSettings(r.Context(), projectID)
		if settings == nil {
			h.respondWithJSON(w, http.StatusBadRequest, templatesError{
				Code:    "01",
				Message: "whatsapp not installed for the project_id " + projectID,
			})
			return
		}

		ctx, cancel := h.sendContext(r)
		defer cancel()
		templates, err := h.whatsapp.GetTemplates(ctx, settings.WabToken, settings.BusinessAccountID)
		if err != nil {
			log.Error().Err(err).Str("projectID", projectID).Msg("Failed to get templates")
			h.respondWithJSON(w, http.StatusInternalServerError, templatesError{
				Code:    "02",
				Message: "a problem occurred while getting templates from whatsapp",
			})
			return
		}

		h.respondWithJSON(w, http.StatusOK, templates.Data)
	}
}

func (h *Handler) publisherEnabled() bool {
	e, ok := h.publisher.(interface{ Enabled() bool })
	return ok && e.Enabled()
}
