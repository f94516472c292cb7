package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/givlyn/backupd/internal/config"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	config *config.Config
	server *http.Server
	svc    *Services
}

func New(cfg *config.Config) (*Server, error) {
	svc, err := NewServices(cfg)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}

	handler, err := SetupRoutes(&cfg.HTTP, svc)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	return &Server{
		config: cfg,
		svc:    svc,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			// a backup can take minutes on a slow link, WriteTimeout stays unset
			MaxHeaderBytes: 1 << 20,
		},
	}, nil
}

// Start serves until ctx is done or the listener fails, then shuts everything down
func (s *Server) Start(ctx context.Context) error {
	slog.Info("backupd server start", "addr", s.config.HTTP.Addr)

	if err := s.svc.Open(ctx); err != nil {
		return err
	}
	if err := s.svc.StartTriggers(ctx); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.runHTTPServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("backupd server shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("backupd server failure", "error", err)
		return err
	}

	slog.Info("backupd server stopped")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	httpErr := s.server.Shutdown(ctx)
	svcErr := s.svc.Shutdown(ctx)
	return errors.Join(httpErr, svcErr)
}

func (s *Server) runHTTPServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("http server start tls", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("http server start", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}
