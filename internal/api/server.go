// Package api exposes picker sessions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bookingslots/internal/bookingsapi"
	"bookingslots/internal/picker"
)

// HTTPServer serves the slot picker API.
type HTTPServer struct {
	service *picker.Service
	logger  *zerolog.Logger
	server  *http.Server
}

// NewHTTPServer wires the routes.
func NewHTTPServer(port int, service *picker.Service, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{service: service, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/slots", s.handleSlots)
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/context", s.handleSetContext)
	mux.HandleFunc("POST /api/v1/sessions/{id}/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/v1/sessions/{id}/hover", s.handleHover)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/hover", s.handleClearHover)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/selection", s.handleClearSelection)
	mux.HandleFunc("POST /api/v1/sessions/{id}/submit", s.handleSubmit)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(bookingsapi.WithRequestID(r.Context(), id)))
		s.logger.Debug().Str("request_id", id).Str("method", r.Method).Str("path", r.URL.Path).
			Dur("took", time.Since(start)).Msg("api request")
	})
}

// writeServiceError maps picker and backend errors to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var statusErr *bookingsapi.StatusError
	switch {
	case errors.Is(err, picker.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bookingsapi.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, picker.ErrInvalidContext), errors.Is(err, picker.ErrUnknownSlot):
		status = http.StatusBadRequest
	case errors.Is(err, picker.ErrSlotNotSelectable),
		errors.Is(err, picker.ErrNotInteractive),
		errors.Is(err, picker.ErrIncompleteSelection),
		errors.Is(err, picker.ErrInvalidTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, picker.ErrNoSettings):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &statusErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("api request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}
