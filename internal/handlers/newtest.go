package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/services"
)

const qrCodeSize = 256

type newTestRequest struct {
	ProjectID string `json:"project_id"`
	BotID     string `json:"bot_id"`
}

type newTestResponse struct {
	ShortUID string `json:"short_uid"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewTest registers a bot test session and returns its short id.
func (h *Handler) NewTest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req newTestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondWithError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if req.ProjectID == "" || req.BotID == "" {
			h.respondWithError(w, http.StatusBadRequest, "project_id and bot_id are required")
			return
		}

		if !h.registrar.Available() {
			h.respondWithJSON(w, http.StatusInternalServerError, messageResponse{
				Message: "Test it out on Whatsapp not available. Redis not ready.",
			})
			return
		}

		shortID, err := h.registrar.Create(r.Context(), req.ProjectID, req.BotID)
		if err != nil {
			log.Error().Err(err).Str("projectID", req.ProjectID).Msg("Unable to create test session")
			h.respondWithJSON(w, http.StatusInternalServerError, messageResponse{
				Message: "Testing info could not be saved",
			})
			return
		}

		h.respondWithJSON(w, http.StatusOK, newTestResponse{ShortUID: shortID})
	}
}

// TestQRCode renders the wa.me link of a test session as a PNG QR code.
func (h *Handler) TestQRCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortID := mux.Vars(r)["short_id"]
		phone := r.URL.Query().Get("phone")
		if phone == "" {
			h.respondWithError(w, http.StatusBadRequest, "phone is required")
			return
		}

		if h.registrar.Available() {
			if _, err := h.registrar.Lookup(r.Context(), shortID); errors.Is(err, services.ErrSessionNotFound) {
				h.respondWithError(w, http.StatusNotFound, err.Error())
				return
			}
		}

		png, err := qrcode.Encode(services.TestLink(phone, shortID), qrcode.Medium, qrCodeSize)
		if err != nil {
			log.Error().Err(err).Str("shortID", shortID).Msg("Failed to encode QR code")
			h.respondWithError(w, http.StatusInternalServerError, "unable to render QR code")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}
