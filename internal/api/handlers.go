// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package api is the HTTP/JSON transport: a thin adapter that authenticates
// each request against the session registry and calls the owning user's
// Monitor.
package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vigil-watch/vigil/internal/config"
	"github.com/vigil-watch/vigil/internal/events"
	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/monitor"
	"github.com/vigil-watch/vigil/internal/registry"
	"github.com/vigil-watch/vigil/internal/websocket"
)

// Server holds the transport's collaborators.
type Server struct {
	registry *registry.Registry
	manager  *config.Manager
	bus      *events.Bus
	hub      *websocket.Hub
	validate *validator.Validate
}

// NewServer wires the transport layer.
func NewServer(reg *registry.Registry, manager *config.Manager, bus *events.Bus, hub *websocket.Hub) *Server {
	return &Server{
		registry: reg,
		manager:  manager,
		bus:      bus,
		hub:      hub,
		validate: validator.New(),
	}
}

// session decodes and validates a fixed-shape request body, then resolves
// the session. On any failure it writes the rejection and returns ok=false.
// req must point at a struct embedding SessionRequest.
func (s *Server) session(w http.ResponseWriter, r *http.Request, req any, creds func() SessionRequest) (*monitor.Monitor, bool) {
	if err := decodeBody(r, req); err != nil {
		writeBadRequest(w, "malformed request body")
		return nil, false
	}
	if err := s.validate.Struct(req); err != nil {
		writeAccessDenied(w)
		return nil, false
	}
	c := creds()
	m, ok := s.registry.AuthUser(c.Username, c.Token)
	if !ok {
		writeAccessDenied(w)
		return nil, false
	}
	return m, true
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusOK, AuthResponse{Username: req.Username})
		return
	}
	token, ok := s.registry.Login(req.Username, req.Password)
	writeJSON(w, http.StatusOK, AuthResponse{
		Username:    req.Username,
		Token:       token,
		AuthSuccess: ok,
	})
}

func (s *Server) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if _, ok := s.session(w, r, &req, func() SessionRequest { return req }); !ok {
		return
	}
	writeResult(w, true, "User authenticated")
}

// handleAddQuery and handleEditQuery decode into a map because the body is
// the open set of query fields, not a fixed shape.
func (s *Server) handleAddQuery(w http.ResponseWriter, r *http.Request) {
	m, params, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	success, msg := m.AddQuery(params)
	writeResult(w, success, msg)
}

func (s *Server) handleEditQuery(w http.ResponseWriter, r *http.Request) {
	m, params, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	success, msg := m.EditQuery(params)
	writeResult(w, success, msg)
}

// queryParams authenticates a map-shaped body and strips the credential
// fields before handing it to the Monitor.
func (s *Server) queryParams(w http.ResponseWriter, r *http.Request) (*monitor.Monitor, map[string]any, bool) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "malformed request body")
		return nil, nil, false
	}
	m, ok := s.registry.AuthUser(strOf(body, "username"), strOf(body, "token"))
	if !ok {
		writeAccessDenied(w)
		return nil, nil, false
	}
	delete(body, "token")
	delete(body, "username")
	return m, body, true
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	var req UIDRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req.SessionRequest })
	if !ok {
		return
	}
	success, msg := m.DeleteQuery(req.UID)
	writeResult(w, success, msg)
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	var req UIDRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req.SessionRequest })
	if !ok {
		return
	}
	state, found, msg := m.GetQuery(req.UID)
	if !found {
		writeResult(w, false, msg)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetAllQueries(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req })
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.GetAllQueries())
}

// handleGetDashboard runs a scan and returns the fresh snapshot. The result
// also lands on the event bus for connected websocket dashboards.
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req })
	if !ok {
		return
	}
	snapshot, _ := m.Scan(r.Context())
	if s.bus != nil {
		ev := events.ScanCompleted{Username: req.Username, Snapshot: snapshot, At: time.Now()}
		if err := s.bus.PublishScanCompleted(ev); err != nil {
			logging.Warn().Err(err).Str("user", req.Username).Msg("scan event publish failed")
		}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req })
	if !ok {
		return
	}
	success, msg := m.Save()
	writeResult(w, success, msg)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req })
	if !ok {
		return
	}
	success, msg := m.CleanQueries()
	writeResult(w, success, msg)
}

func (s *Server) handleRefreshData(w http.ResponseWriter, r *http.Request) {
	var req RefreshDataRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req.SessionRequest })
	if !ok {
		return
	}
	success, msg := m.ReloadCookies(req.Cookies)
	writeResult(w, success, msg)
}

func (s *Server) handleGetSound(w http.ResponseWriter, r *http.Request) {
	var req GetSoundRequest
	m, ok := s.session(w, r, &req, func() SessionRequest { return req.SessionRequest })
	if !ok {
		return
	}
	data, filename, err := m.GetSoundFile(req.AlertSound)
	if err != nil {
		writeResult(w, false, "Sound not available: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("X-Filename", filename)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Warn().Err(err).Msg("sound body write failed")
	}
}

func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	var req ReloadConfigRequest
	if _, ok := s.session(w, r, &req, func() SessionRequest { return req.SessionRequest }); !ok {
		return
	}
	if !s.manager.CheckPassphrase(req.Passphrase) {
		writeAccessDenied(w)
		return
	}
	if err := s.manager.Reload(); err != nil {
		writeResult(w, false, "Config reload failed: "+err.Error())
		return
	}
	writeResult(w, true, "Config reloaded")
}
