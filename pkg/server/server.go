package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seedgate/seedgate/pkg/client"
	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/manager"
)

const shutdownTimeout = 10 * time.Second

// Service is the part of the manager exposed over http.
type Service interface {
	Manage(ctx context.Context, remove bool) (manager.Report, error)
	Check(ctx context.Context, clientName string, trackerName string, size int64) (bool, string, error)
}

type Server struct {
	addr string
	svc  Service
	log  *logrus.Entry
}

type checkRequest struct {
	Client  *string          `json:"client"`
	Tracker *string          `json:"tracker"`
	Size    *json.RawMessage `json:"size"`
}

func New(addr string, svc Service) *Server {
	return &Server{
		addr: addr,
		svc:  svc,
		log:  logger.GetLogger("server"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.root)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.log.Info("Server stopped")
	return nil
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.manage(w, r)
	case http.MethodPost:
		s.check(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		reply(w, http.StatusMethodNotAllowed, "Method not allowed.\n")
	}
}

func (s *Server) manage(w http.ResponseWriter, r *http.Request) {
	remove := r.URL.Query().Get("delete") == "1"

	s.log.Debugf("Sweep requested by %s (delete=%v)", r.RemoteAddr, remove)

	// a sweep that started removing runs to completion when the caller hangs up
	ctx := context.WithoutCancel(r.Context())

	if _, err := s.svc.Manage(ctx, remove); err != nil {
		s.log.WithError(err).Error("Sweep failed")
		reply(w, http.StatusInternalServerError, fmt.Sprintf("Sweep failed: %v\n", err))
		return
	}

	reply(w, http.StatusOK, "OK\n")
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil ||
		req.Client == nil || req.Tracker == nil || req.Size == nil {
		reply(w, http.StatusBadRequest, "Required parameters: tracker, size, client.\n")
		return
	}

	size, err := strconv.ParseInt(string(*req.Size), 10, 64)
	if err != nil || size <= 0 {
		reply(w, http.StatusBadRequest, "Size must be a positive integer.\n")
		return
	}

	ok, reason, err := s.svc.Check(r.Context(), *req.Client, *req.Tracker, size)
	switch {
	case errors.Is(err, manager.ErrInvalidArgument):
		reply(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters: %v\n", err))
	case errors.Is(err, client.ErrBackendUnavailable):
		s.log.WithError(err).Warnf("Check failed for client %s", *req.Client)
		reply(w, http.StatusServiceUnavailable, fmt.Sprintf("Backend unavailable: %v\n", err))
	case err != nil:
		s.log.WithError(err).Errorf("Check failed for client %s", *req.Client)
		reply(w, http.StatusInternalServerError, fmt.Sprintf("Check failed: %v\n", err))
	case ok:
		reply(w, http.StatusOK, "OK\n")
	default:
		reply(w, http.StatusForbidden, fmt.Sprintf("NOK: %s\n", reason))
	}
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
