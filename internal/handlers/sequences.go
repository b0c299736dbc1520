package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SequencesStatus lists the command sequences currently running.
func (h *Handler) SequencesStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.sequencer == nil {
			h.respondWithError(w, http.StatusServiceUnavailable, "Sequencer not initialized")
			return
		}

		sendTimeout, maxWait := h.sequencer.Limits()
		running := h.sequencer.Running()
		h.respondWithJSON(w, http.StatusOK, map[string]any{
			"status":          "running",
			"running":         len(running),
			"sequences":       running,
			"send_timeout_ms": sendTimeout.Milliseconds(),
			"max_wait_ms":     maxWait.Milliseconds(),
		})
	}
}

// SequenceStatus returns the state of one running sequence.
func (h *Handler) SequenceStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.sequencer == nil {
			h.respondWithError(w, http.StatusServiceUnavailable, "Sequencer not initialized")
			return
		}

		id := mux.Vars(r)["id"]
		state, ok := h.sequencer.Get(id)
		if !ok {
			h.respondWithError(w, http.StatusNotFound, "Sequence not found or already finished")
			return
		}
		h.respondWithJSON(w, http.StatusOK, state)
	}
}
