package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/kernel/chat"
	"github.com/OnslaughtSnail/edgechat/kernel/memory"
	"github.com/OnslaughtSnail/edgechat/kernel/relay"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": s.deps.Now().UnixMilli()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	req, err := chat.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	if req.ModelID == "" {
		req.ModelID = strings.TrimSpace(r.Header.Get("X-Model-Id"))
	}

	sse := relay.NewSSEWriter(w)
	err = s.deps.Chat.Handle(r.Context(), req, sse)
	if err == nil {
		return
	}
	if sse.Started() {
		s.log.Debug("chat stream ended early", zap.String("session_id", req.SessionID), zap.Error(err))
		return
	}
	s.writeChatError(w, err)
}

func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	var verr *chat.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"fieldErrors": verr.Fields},
		})
	case chat.IsConfigError(err):
		s.log.Error("chat misconfigured", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	case memory.IsOverloaded(err):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.log.Warn("chat failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream generation failed")
	}
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		s.handleNotFound(w, r)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if r.Method == http.MethodGet {
		state, err := s.deps.Memory.Get(r.Context(), sessionID)
		if err != nil {
			s.writeMemoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "memory": state})
		return
	}
	if err := s.deps.Memory.Clear(r.Context(), sessionID); err != nil {
		s.writeMemoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessionId": sessionID})
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}
	var req memory.IntentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := s.deps.Memory.Dispatch(r.Context(), r.PathValue("sessionId"), req)
	if err != nil {
		s.writeMemoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeMemoryError(w http.ResponseWriter, err error) {
	var verr *memory.ValidationError
	switch {
	case errors.Is(err, memory.ErrUnknownIntent):
		writeError(w, http.StatusBadRequest, "Unknown intent")
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"fieldErrors": verr.Fields},
		})
	case memory.IsOverloaded(err):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, memory.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("memory operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "memory operation failed")
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
