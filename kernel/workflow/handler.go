package workflow

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

const maxInputBytes = 1 << 20

// Handler serves the pipeline over HTTP: POST a JSON Input, receive
// application/x-ndjson records.
type Handler struct {
	Pipeline *Pipeline
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var in Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInputBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := h.Pipeline.Prepare(r.Context(), in)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	if err := reply.Emit(r.Context(), w, func() { _ = rc.Flush() }); err != nil {
		h.Pipeline.logger().Debug("emit stream interrupted", zap.String("session_id", in.SessionID), zap.Error(err))
	}
}

func statusFor(err error) int {
	if errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
