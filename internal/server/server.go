// Package server is the admission surface: an HTTP/JSON API over the queue
// and observer, translating requests into their public operations and
// never touching store state directly.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/interfaces"
)

// Server wraps the HTTP server and its queue/observer collaborators.
type Server struct {
	queue                  interfaces.Queue
	observer               interfaces.Observer
	logger                 *common.Logger
	server                 *http.Server
	defaultMetricsWindowMS int64
}

// New constructs an admission-surface server listening on host:port.
// admissionTokenSecret, if non-empty, requires every request to present a
// valid admission-scoped bearer JWT signed with that secret (see
// IssueAdmissionToken).
func New(host string, port int, queue interfaces.Queue, observer interfaces.Observer, logger *common.Logger, defaultMetricsWindowMS int64, admissionTokenSecret string) *Server {
	s := &Server{
		queue:                  queue,
		observer:               observer,
		logger:                 logger,
		defaultMetricsWindowMS: defaultMetricsWindowMS,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	handler := applyMiddleware(mux, logger, observer, admissionTokenSecret)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for testing with httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server. It blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting admission surface")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
