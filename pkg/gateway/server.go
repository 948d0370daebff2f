// Package gateway exposes the relay core over HTTP to the chat-platform
// layer and to privileged operators.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/models"
	"github.com/chatrelay-ai/chatrelay/pkg/relay"
)

// Server is the chatrelay HTTP front end.
type Server struct {
	cfg     *config.Config
	service *relay.Service
	mux     *http.ServeMux
}

// New creates a Server around the relay service.
func New(cfg *config.Config, service *relay.Service) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/ask", s.handleAsk)
	s.mux.HandleFunc("/v1/admin/reset", s.adminOnly(s.handleReset))
	s.mux.HandleFunc("/v1/admin/usage", s.adminOnly(s.handleUsage))
	s.mux.HandleFunc("/v1/admin/status", s.adminOnly(s.handleStatus))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the gateway with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("chatrelay gateway listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	r.Body.Close()

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.UserID == "" || req.Prompt == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id and prompt are required")
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	resp := s.service.Handle(r.Context(), requestID, req)

	status := http.StatusOK
	switch {
	case resp.Denied != "":
		status = http.StatusTooManyRequests
	case resp.Error != "":
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.service.ResetAllLimits()
		writeJSON(w, http.StatusOK, map[string]string{"reset": "all"})
		return
	}
	s.service.ResetUserLimits(userID)
	writeJSON(w, http.StatusOK, map[string]string{"reset": userID})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	isAdmin := r.URL.Query().Get("is_admin") == "true"
	writeJSON(w, http.StatusOK, s.service.UsageSnapshot(userID, isAdmin))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.service.GetStatus())
}

// adminOnly gates a handler behind the configured admin token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			writeJSONError(w, http.StatusForbidden, "admin endpoints disabled: no admin_token configured")
			return
		}
		if r.Header.Get("X-Admin-Token") != s.cfg.AdminToken {
			writeJSONError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`, message, code)
}
