package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/whatsapp"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/events"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/services"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/translator"
)

const verifyUndefinedText = "impossible to verify the webhook: mode or token undefined."

// inboundEvent is published for every WhatsApp message handled by the webhook.
type inboundEvent struct {
	From          string `json:"from"`
	PhoneNumberID string `json:"phone_number_id"`
	MessageID     string `json:"message_id"`
	MessageType   string `json:"message_type"`
	RequestID     string `json:"request_id,omitempty"`
	MediaURL      string `json:"media_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

// firstMessage returns the first message of the first change, the only one WhatsApp
// ever populates for message notifications.
func firstMessage(payload *whatsapp.WebhookPayload) (*whatsapp.WebhookValue, *whatsapp.InboundMessage) {
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, nil
	}
	value := payload.Entry[0].Changes[0].Value
	if value == nil || len(value.Messages) == 0 {
		return nil, nil
	}
	return value, &value.Messages[0]
}

// WhatsappWebhook receives the notifications of the WhatsApp Cloud API and relays
// user messages to Tiledesk.
func (h *Handler) WhatsappWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := mux.Vars(r)["project_id"]

		var payload whatsapp.WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Warn().Err(err).Str("projectID", projectID).Msg("Invalid WhatsApp webhook body")
			h.respondWithError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if payload.Object == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		value, msg := firstMessage(&payload)
		if msg == nil {
			// status updates and other notifications without messages
			w.WriteHeader(http.StatusOK)
			return
		}
		if msg.Type == whatsapp.TypeSystem {
			log.Debug().Str("projectID", projectID).Msg("Skip system message")
			w.WriteHeader(http.StatusOK)
			return
		}

		settings := h.loadSettings(r.Context(), projectID)
		if settings == nil {
			log.Warn().Str("projectID", projectID).Msg("WhatsApp message for a project without settings")
			w.WriteHeader(http.StatusOK)
			return
		}

		logger := log.With().
			Str("projectID", projectID).
			Str("from", msg.From).
			Str("messageID", msg.ID).
			Str("type", msg.Type).
			Logger()

		seenKey := projectID + ":" + msg.ID
		if msg.ID != "" {
			if err := h.seen.Add(seenKey, struct{}{}, cache.DefaultExpiration); err != nil {
				logger.Info().Msg("Duplicate WhatsApp message ignored")
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		var displayName string
		if len(value.Contacts) > 0 {
			displayName = value.Contacts[0].Profile.Name
		}
		info := tiledesk.MessageInfo{
			Channel: translator.ChannelName,
			Whatsapp: tiledesk.WhatsappInfo{
				PhoneNumberID: value.Metadata.PhoneNumberID,
				From:          msg.From,
				Firstname:     displayName,
				Lastname:      " ",
			},
		}

		ctx, cancel := h.sendContext(r)
		defer cancel()

		if msg.Type == whatsapp.TypeText && msg.Text != nil {
			if code, ok := services.ParseTestCode(msg.Text.Body); ok {
				if h.tester == nil {
					logger.Warn().Msg("Bot test requested but testing is not configured")
				} else if err := h.tester.Start(ctx, settings, info, code); err != nil {
					logger.Error().Err(err).Str("shortID", code).Msg("Unable to start bot test")
				}
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		ev := inboundEvent{
			From:          msg.From,
			PhoneNumberID: info.Whatsapp.PhoneNumberID,
			MessageID:     msg.ID,
			MessageType:   msg.Type,
		}

		var mediaURL string
		if media := msg.Media(); media != nil {
			if h.media == nil {
				logger.Error().Msg("Media received but no media relay is configured")
				w.WriteHeader(http.StatusOK)
				return
			}
			ref, err := h.media.Relay(ctx, settings, media, services.CategoryFor(msg.Type))
			if err != nil {
				ev.Error = err.Error()
				h.publish(ctx, events.EventMediaFailed, projectID, ev)
				if errors.Is(err, services.ErrMediaDownload) {
					// WhatsApp retries the notification, which must not be taken for a duplicate
					h.seen.Delete(seenKey)
					logger.Error().Err(err).Str("mediaID", media.ID).Msg("Unable to download media")
					h.respondWithError(w, http.StatusInternalServerError, services.ErrMediaDownload.Error())
					return
				}
				logger.Error().Err(err).Str("mediaID", media.ID).Msg("Media not relayed")
				w.WriteHeader(http.StatusOK)
				return
			}
			mediaURL = ref.HostedURL
			ev.MediaURL = mediaURL
			h.publish(ctx, events.EventMediaRelayed, projectID, ev)
		}

		tdMsg := translator.ToTiledesk(msg, displayName, mediaURL)
		if tdMsg == nil {
			logger.Warn().Msg("Unsupported WhatsApp message type")
			w.WriteHeader(http.StatusOK)
			return
		}

		sent, err := h.tiledesk.Send(ctx, settings, tdMsg, info, settings.DepartmentID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to send message to Tiledesk")
			w.WriteHeader(http.StatusOK)
			return
		}
		if sent != nil {
			ev.RequestID = sent.RequestID
		}
		logger.Info().Str("requestID", ev.RequestID).Msg("Message sent to Tiledesk")
		h.publish(ctx, events.EventInboundMessage, projectID, ev)
		w.WriteHeader(http.StatusOK)
	}
}

// VerifyWebhook answers the subscription handshake of the WhatsApp Cloud API.
func (h *Handler) VerifyWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := mux.Vars(r)["project_id"]
		q := r.URL.Query()
		mode := q.Get("hub.mode")
		token := q.Get("hub.verify_token")
		challenge := q.Get("hub.challenge")

		settings := h.loadSettings(r.Context(), projectID)
		if settings == nil || settings.VerifyToken == "" {
			log.Error().Str("projectID", projectID).Msg("No settings found, unable to verify token")
			w.WriteHeader(http.StatusForbidden)
			return
		}

		if mode == "" || token == "" {
			log.Error().Str("projectID", projectID).Msg("Mode or token undefined")
			http.Error(w, verifyUndefinedText, http.StatusBadRequest)
			return
		}

		if mode != "subscribe" || token != settings.VerifyToken {
			log.Error().Str("projectID", projectID).Msg("Mode is not subscribe or token does not match")
			w.WriteHeader(http.StatusForbidden)
			return
		}

		log.Info().Str("projectID", projectID).Msg("Webhook verified")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
	}
}
