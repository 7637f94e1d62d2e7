package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"newsboy/internal/api"
	"newsboy/internal/config"
	"newsboy/internal/logging"
	"newsboy/internal/pipeline"
)

type apiServer struct {
	bind   string
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	router := api.NewRouter(api.Deps{
		Store:      d.store,
		Tuner:      d.pipeline.Tuner(),
		Controller: controller{daemon: d},
		Cache:      d.pipeline.Cache(),
		Logger:     logger,
		Token:      strings.TrimSpace(cfg.Paths.APIToken),
		Now:        d.now,
	})
	srv := &apiServer{bind: bind, logger: logger}
	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger
}

// controller adapts the daemon to the API's Controller.
type controller struct {
	daemon *Daemon
}

func (c controller) Status(ctx context.Context) api.DaemonStatus {
	status := c.daemon.Status(ctx)
	payload := api.DaemonStatus{
		Running:       status.Running,
		PID:           os.Getpid(),
		Phase:         string(status.Phase),
		Operation:     string(status.Operation),
		LastBatchDate: api.FormatDate(status.LastBatchDate),
		NextRun:       api.FormatTime(status.NextRun),
		LastRun:       status.LastRun,
		Stages:        status.Stages,
		DatabasePath:  status.DatabasePath,
		LockFilePath:  status.LockFilePath,
		LogPath:       status.LogPath,
		APIAddress:    status.APIAddress,
	}
	return payload
}

func (c controller) Submit(op pipeline.Operation, day time.Time) error {
	return c.daemon.Submit(op, day)
}
