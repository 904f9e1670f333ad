// Package server exposes the router and the poller over HTTP for
// deployments that hand inbound mail to a webhook instead of a pipe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/nhle/issuebot/internal/mail"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/poller"
	"github.com/nhle/issuebot/internal/router"
)

const (
	// maxMessageBytes caps the size of an inbound message.
	maxMessageBytes = 10 << 20

	shutdownTimeout = 10 * time.Second
)

// Router handles one inbound message.
type Router interface {
	Handle(ctx context.Context, env *mail.Envelope) (router.Result, error)
}

// Poller runs one update pass.
type Poller interface {
	Run(ctx context.Context) poller.Report
}

// Server serialises every routed message and poll run through one mutex,
// so the two paths never overlap inside the process.
type Server struct {
	router Router
	poller Poller
	logger *slog.Logger

	mu sync.Mutex
}

// New creates a Server.
func New(r Router, p Poller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: r, poller: p, logger: logger}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/inbound", s.handleInbound).Methods(http.MethodPost)
	r.HandleFunc("/poll", s.handlePoll).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return r
}

// inboundResponse is the JSON answer to POST /inbound.
type inboundResponse struct {
	Command  string `json:"command"`
	Issue    int64  `json:"issue,omitempty"`
	Error    string `json:"error,omitempty"`
	Delivery string `json:"delivery,omitempty"`
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	env, err := mail.ParseEnvelope(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		s.logger.Warn("rejecting unparseable message", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	res, err := s.router.Handle(r.Context(), env)
	s.mu.Unlock()

	resp := inboundResponse{Command: res.Command.Kind.String()}
	if res.Issue != nil {
		resp.Issue = res.Issue.ID
	}
	if res.Err != nil {
		resp.Error = model.UserMessage(res.Err)
	}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	resp.Delivery = res.Delivery.String()
	writeJSON(w, http.StatusOK, resp)
}

// pollResponse is the JSON answer to POST /poll.
type pollResponse struct {
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	report := s.poll(r.Context())

	resp := pollResponse{
		Updated:   report.Updated,
		Unchanged: report.Unchanged,
		Failed:    report.Failed,
	}
	if err := report.Err(); err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) poll(ctx context.Context) poller.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poller.Run(ctx)
}

// pollEvery runs the poller on a ticker until ctx is done. Poll failures
// are logged by the poller and never stop the loop.
func (s *Server) pollEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.poll(ctx).Err(); err != nil {
				s.logger.Warn("scheduled poll had failures", "error", err)
			}
		}
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. A positive pollInterval also runs the poller periodically.
func (s *Server) ListenAndServe(ctx context.Context, addr string, pollInterval time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if pollInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pollEvery(ctx, pollInterval)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "poll_interval", pollInterval)
		errCh <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		err = srv.Shutdown(shutdownCtx)
	}
	cancel()
	wg.Wait()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
