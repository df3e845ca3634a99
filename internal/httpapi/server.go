// Package httpapi exposes the persisted user record over HTTP. This is
// the surface the Swagger verification workflow exercises.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/prefpilot/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RecordStore is the store surface the API needs.
type RecordStore interface {
	Get() (*schemas.UserRecord, error)
	Save(rec schemas.UserRecord) error
	Update(partial schemas.WorkflowInput) (*schemas.UserRecord, error)
	Delete() error
}

// envelope is the uniform response shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server serves the user-record API on one listener.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// NewServer builds the API server on addr.
func NewServer(addr string, store RecordStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("httpapi")
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(store, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("HTTP API listening.", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http api: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// NewHandler builds the route table. Exposed separately so tests can
// drive it with httptest.
func NewHandler(store RecordStore, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{store: store, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /api/user", h.getUser)
	mux.HandleFunc("POST /api/user", h.createUser)
	mux.HandleFunc("PATCH /api/user", h.updateUser)
	mux.HandleFunc("DELETE /api/user", h.deleteUser)
	return mux
}

type handler struct {
	store RecordStore
	log   *zap.Logger
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("Failed to write response.", zap.Error(err))
	}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
}

func (h *handler) getUser(w http.ResponseWriter, _ *http.Request) {
	rec, err := h.store.Get()
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: err.Error()})
		return
	}
	if rec == nil {
		h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "no user data found"})
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: rec})
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var rec schemas.UserRecord
	if err := decodeBody(r.Body, &rec); err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
		return
	}
	if rec.MHMDPreference == "" {
		rec.MHMDPreference = schemas.PreferenceOptOut
	}
	if !rec.MHMDPreference.IsValid() {
		h.writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: fmt.Sprintf("mhmd_preference must be OPT_IN or OPT_OUT, got %q", rec.MHMDPreference),
		})
		return
	}

	if err := h.store.Save(rec); err != nil {
		h.writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: rec, Message: "user saved"})
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var partial schemas.WorkflowInput
	if err := decodeBody(r.Body, &partial); err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
		return
	}

	rec, err := h.store.Update(partial)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: rec, Message: "user updated"})
}

func (h *handler) deleteUser(w http.ResponseWriter, _ *http.Request) {
	if err := h.store.Delete(); err != nil {
		h.writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "user data reset"})
}

func decodeBody(body io.Reader, out any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
