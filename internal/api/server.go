// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vigil-watch/vigil/internal/config"
	"github.com/vigil-watch/vigil/internal/logging"
)

// HTTPService runs the HTTP(S) listener as a suture service.
type HTTPService struct {
	server  *http.Server
	tlsCert string
	tlsKey  string
}

// NewHTTPService builds the listener from server config and a route tree.
func NewHTTPService(cfg config.ServerConfig, handler http.Handler) *HTTPService {
	return &HTTPService{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Timeout,
			WriteTimeout:      cfg.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		tlsCert: cfg.TLSCert,
		tlsKey:  cfg.TLSKey,
	}
}

// Serve listens until ctx is canceled, then shuts down gracefully.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.tlsCert != "" {
			logging.Info().Str("addr", s.server.Addr).Msg("https server listening")
			err = s.server.ListenAndServeTLS(s.tlsCert, s.tlsKey)
		} else {
			logging.Info().Str("addr", s.server.Addr).Msg("http server listening")
			err = s.server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("http shutdown failed")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *HTTPService) String() string { return "http-server" }
