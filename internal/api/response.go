// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/vigil-watch/vigil/internal/logging"
)

// Result is the {success, msg} pair every mutating endpoint returns.
type Result struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

// AuthResponse is the /auth reply.
type AuthResponse struct {
	Username    string `json:"username"`
	Token       string `json:"token"`
	AuthSuccess bool   `json:"auth_success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("response encode failed")
	}
}

func writeResult(w http.ResponseWriter, ok bool, msg string) {
	writeJSON(w, http.StatusOK, Result{Success: ok, Msg: msg})
}

// writeAccessDenied is the uniform rejection for missing or invalid
// (username, token) pairs.
func writeAccessDenied(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, Result{Success: false, Msg: "Access Denied"})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, Result{Success: false, Msg: msg})
}
