// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package api

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"

	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWS upgrades an authenticated dashboard connection. Browsers cannot
// set a JSON body on a WebSocket handshake, so credentials arrive as query
// parameters.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	token := r.URL.Query().Get("token")
	if _, ok := s.registry.AuthUser(username, token); !ok {
		writeAccessDenied(w)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("user", username).Msg("websocket upgrade failed")
		return
	}
	websocket.NewClient(s.hub, conn, username).Start()
}
