// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigil-watch/vigil/internal/middleware"
)

// Router assembles the route tree with the shared middleware stack. A strict
// per-IP limit guards /auth against brute force; everything else shares a
// generous ceiling.
func (s *Server) Router(corsOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/ping", s.handlePing)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/auth", s.handleAuth)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Post("/verify_session", s.handleVerifySession)
		r.Post("/add_query", s.handleAddQuery)
		r.Post("/edit_query", s.handleEditQuery)
		r.Post("/delete_query", s.handleDeleteQuery)
		r.Post("/get_query", s.handleGetQuery)
		r.Post("/get_all_queries", s.handleGetAllQueries)
		r.Post("/get_dashboard", s.handleGetDashboard)
		r.Post("/save", s.handleSave)
		r.Post("/clean", s.handleClean)
		r.Post("/refresh_data", s.handleRefreshData)
		r.Post("/get_sound", s.handleGetSound)
		r.Post("/reload_config", s.handleReloadConfig)
	})

	return r
}
