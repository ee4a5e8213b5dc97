// Package service exposes a read-only diagnostics API for a running
// participant, for dashboards and debugging.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pion/logging"

	"github.com/visavis/visavis/pkg/endpoint"
	"github.com/visavis/visavis/pkg/state"
	"github.com/visavis/visavis/pkg/version"
)

// Node is the slice of the participant the service reports on.
type Node interface {
	Identity() endpoint.Identity
	Status() state.Status
	Partner() endpoint.Identity
	IsMuted() bool
	IsVideoOff() bool
}

// StatusReport is the GET /status response body.
type StatusReport struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
	Partner  string `json:"partner,omitempty"`
	Muted    bool   `json:"muted"`
	VideoOff bool   `json:"video_off"`
}

// VersionReport is the GET /version response body.
type VersionReport struct {
	Version string `json:"version"`
}

// Service serves the diagnostics API over HTTP.
type Service struct {
	addr string
	node Node
	log  logging.LeveledLogger
	srv  *http.Server
}

// New creates a service bound to addr, reporting on node.
func New(addr string, node Node, loggerFactory logging.LoggerFactory) *Service {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	s := &Service{
		addr: addr,
		node: node,
		log:  loggerFactory.NewLogger("service"),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the HTTP routes. Exposed so tests can mount them on
// an httptest server.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.getStatus)
	r.Get("/version", s.getVersion)
	return r
}

// Serve blocks serving the API until Shutdown is called.
func (s *Service) Serve() error {
	s.log.Infof("serving diagnostics API on %s", s.addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Service) getStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, StatusReport{
		Identity: string(s.node.Identity()),
		Status:   s.node.Status().String(),
		Partner:  string(s.node.Partner()),
		Muted:    s.node.IsMuted(),
		VideoOff: s.node.IsVideoOff(),
	})
}

func (s *Service) getVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, VersionReport{Version: version.Version})
}

func (s *Service) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	// Local dashboards poll from another origin.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("encoding response: %v", err)
	}
}
