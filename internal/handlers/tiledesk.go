package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/db"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/events"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/services"
)

// templateErrorText is returned to Tiledesk whenever a message cannot be delivered to WhatsApp.
const templateErrorText = "il template non esiste"

// outboundEvent is published for every message relayed to WhatsApp.
type outboundEvent struct {
	Receiver      string `json:"receiver"`
	PhoneNumberID string `json:"phone_number_id"`
	MessageType   string `json:"message_type,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// TiledeskWebhook receives the messages Tiledesk posts to the channel subscription
// and relays them to WhatsApp.
func (h *Handler) TiledeskWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event tiledesk.OutboundEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			log.Warn().Err(err).Msg("Invalid Tiledesk webhook body")
			h.respondWithError(w, http.StatusBadRequest, "invalid payload")
			return
		}

		msg := event.Payload
		var settings *models.ChannelSettings
		if msg != nil {
			settings = h.loadSettings(r.Context(), msg.ProjectID)
		}

		decision := services.DecideOutbound(msg, settings)
		logger := log.With().
			Str("decision", decision.Kind.String()).
			Str("receiver", decision.Receiver).
			Str("phoneNumberID", decision.PhoneNumberID).
			Logger()
		if msg != nil {
			logger = logger.With().Str("projectID", msg.ProjectID).Logger()
		}

		ctx := context.WithoutCancel(r.Context())

		switch decision.Kind {
		case services.Skip, services.Acknowledge:
			logger.Debug().Str("reason", decision.Reason).Msg("Tiledesk message not relayed")
			w.WriteHeader(http.StatusOK)

		case services.Expired:
			sendCtx, cancel := h.sendContext(r)
			defer cancel()
			if _, err := h.tiledesk.Send(sendCtx, settings, decision.Notice, decision.NoticeInfo, settings.DepartmentID); err != nil {
				logger.Error().Err(err).Msg("Failed to send expired plan notice")
			} else {
				logger.Info().Msg("Expired plan notice sent")
			}
			h.publish(ctx, events.EventExpiredNotice, settings.ProjectID, outboundEvent{
				Receiver:      decision.Receiver,
				PhoneNumberID: decision.PhoneNumberID,
			})
			w.WriteHeader(http.StatusOK)

		case services.RunSequence:
			if h.sequencer == nil {
				logger.Error().Msg("Commands received but no sequencer is configured")
				w.WriteHeader(http.StatusOK)
				return
			}
			id := h.sequencer.Start(r.Context(), &services.Sequence{
				Settings:      settings,
				Parent:        msg,
				Receiver:      decision.Receiver,
				PhoneNumberID: decision.PhoneNumberID,
				Commands:      decision.Commands,
			})
			logger.Info().Str("sequenceID", id).Int("commands", len(decision.Commands)).Msg("Command sequence started")
			w.WriteHeader(http.StatusOK)

		case services.Forward:
			sendCtx, cancel := h.sendContext(r)
			defer cancel()
			resp, err := h.whatsapp.SendMessage(sendCtx, settings.WabToken, decision.PhoneNumberID, decision.Message)
			if err != nil {
				logger.Error().Err(err).Str("type", decision.Message.Type).Msg("Failed to send message to WhatsApp")
				h.publish(ctx, events.EventOutboundFailed, settings.ProjectID, outboundEvent{
					Receiver:      decision.Receiver,
					PhoneNumberID: decision.PhoneNumberID,
					MessageType:   decision.Message.Type,
					Error:         err.Error(),
				})
				h.respondWithError(w, http.StatusBadRequest, templateErrorText)
				return
			}

			ev := outboundEvent{
				Receiver:      decision.Receiver,
				PhoneNumberID: decision.PhoneNumberID,
				MessageType:   decision.Message.Type,
			}
			if resp != nil && len(resp.Messages) > 0 {
				ev.MessageID = resp.Messages[0].ID
			}
			logger.Info().Str("type", ev.MessageType).Str("messageID", ev.MessageID).Msg("Message sent to WhatsApp")
			h.publish(ctx, events.EventOutboundMessage, settings.ProjectID, ev)
			w.WriteHeader(http.StatusOK)

		case services.Reject:
			logger.Warn().Str("reason", decision.Reason).Msg("Tiledesk message cannot be translated")
			h.respondWithError(w, http.StatusBadRequest, templateErrorText)
		}
	}
}

// loadSettings returns nil when the project has no WhatsApp configuration
// or the store cannot be read.
func (h *Handler) loadSettings(ctx context.Context, projectID string) *models.ChannelSettings {
	if projectID == "" {
		return nil
	}
	settings, err := h.settings.Get(ctx, projectID)
	if err != nil {
		if !errors.Is(err, db.ErrSettingsNotFound) {
			log.Error().Err(err).Str("projectID", projectID).Msg("Failed to load settings")
		}
		return nil
	}
	return settings
}
