// Package httpapi exposes an execution manager over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/builder/internal/engine/execution"
	"go.trai.ch/builder/internal/engine/graph"
	"go.trai.ch/zerr"
)

const shutdownTimeout = 5 * time.Second

// Scheduler is the part of the execution manager the API drives.
type Scheduler interface {
	Submit(id string, ctx domain.BuildContext, opts graph.AddOptions) (*domain.BuildUpdate, error)
	UpdateTargets(ids []string) error
	ExternalUpdateTargets(ids []string) error
	UpdateTopMost() error
	JobStates() []execution.JobState
	JobState(id string) (execution.JobState, error)
	ResetJob(id string) error
}

// Server routes control requests to a Scheduler.
type Server struct {
	scheduler Scheduler
	logger    ports.Logger
	router    *mux.Router
}

// NewServer creates a Server for scheduler.
func NewServer(scheduler Scheduler, logger ports.Logger) *Server {
	s := &Server{scheduler: scheduler, logger: logger, router: mux.NewRouter()}
	s.router.HandleFunc("/submit", s.submit).Methods(http.MethodPost)
	s.router.HandleFunc("/update", s.update).Methods(http.MethodPost)
	s.router.HandleFunc("/external_update", s.externalUpdate).Methods(http.MethodPost)
	s.router.HandleFunc("/update_top_most", s.updateTopMost).Methods(http.MethodPost)
	s.router.HandleFunc("/jobs", s.jobs).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}", s.job).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}/reset", s.reset).Methods(http.MethodPost)
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "listen"), "addr", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info(fmt.Sprintf("listening on %s", ln.Addr()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return zerr.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return zerr.Wrap(err, "shutdown")
	}
	<-errCh
	return nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, buildCtx, opts, err := req.parse()
	if err != nil {
		s.fail(w, err)
		return
	}
	update, err := s.scheduler.Submit(id, buildCtx, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Debug(fmt.Sprintf("submitted %s over http", id))
	writeJSON(w, newSubmitResponse(update), http.StatusOK)
}

// update refreshes the cached state of the targets without scheduling anything.
func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.scheduler.UpdateTargets(req.TargetIDs); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, statusResponse{Status: "ok"}, http.StatusOK)
}

// externalUpdate refreshes the targets and queues the jobs around them that became due.
func (s *Server) externalUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.scheduler.ExternalUpdateTargets(req.TargetIDs); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, statusResponse{Status: "ok"}, http.StatusOK)
}

func (s *Server) updateTopMost(w http.ResponseWriter, _ *http.Request) {
	if err := s.scheduler.UpdateTopMost(); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, statusResponse{Status: "ok"}, http.StatusOK)
}

func (s *Server) jobs(w http.ResponseWriter, _ *http.Request) {
	states := s.scheduler.JobStates()
	out := make([]JobResponse, 0, len(states))
	for _, state := range states {
		out = append(out, newJobResponse(state))
	}
	writeJSON(w, out, http.StatusOK)
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	state, err := s.scheduler.JobState(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, newJobResponse(state), http.StatusOK)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.scheduler.ResetJob(id); err != nil {
		s.fail(w, err)
		return
	}
	state, err := s.scheduler.JobState(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, newJobResponse(state), http.StatusOK)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request body: " + err.Error()}, http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(err)
	}
	resp := errorResponse{Error: err.Error()}
	var zErr interface{ Metadata() map[string]any }
	if errors.As(err, &zErr) {
		if meta := zErr.Metadata(); len(meta) > 0 {
			resp.Metadata = meta
		}
	}
	writeJSON(w, resp, status)
}

func statusFor(err error) int {
	switch {
	case domain.IsError(err, domain.ErrNodeNotFound):
		return http.StatusNotFound
	case domain.IsError(err, domain.ErrJobRunning):
		return http.StatusConflict
	case domain.IsError(err, domain.ErrNotJobNode),
		domain.IsError(err, domain.ErrNotTargetNode),
		domain.IsError(err, domain.ErrNotMetaNode),
		domain.IsError(err, domain.ErrNotDependencyNode),
		domain.IsError(err, domain.ErrMissingStartTime),
		domain.IsError(err, domain.ErrInvalidTime),
		domain.IsError(err, domain.ErrInvalidTimeStep),
		domain.IsError(err, domain.ErrUnknownBackend),
		domain.IsError(err, domain.ErrUnknownKind),
		domain.IsError(err, domain.ErrUnknownDirection),
		domain.IsError(err, domain.ErrNoJobSpecified):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes data as a JSON response with the supplied status code.
func writeJSON(w http.ResponseWriter, data any, status int) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("{}"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
