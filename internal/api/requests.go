// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package api

import (
	"net/http"

	"github.com/goccy/go-json"
)

// AuthRequest is the /auth body.
type AuthRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionRequest carries the credentials every non-auth endpoint requires.
type SessionRequest struct {
	Token    string `json:"token" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// UIDRequest targets one query.
type UIDRequest struct {
	SessionRequest
	UID string `json:"uid" validate:"required"`
}

// RefreshDataRequest delivers harvested cookie jars keyed by cookies
// filename.
type RefreshDataRequest struct {
	SessionRequest
	Cookies map[string]map[string]string `json:"cookies" validate:"required"`
}

// GetSoundRequest names the alert sound to fetch; blank means the default.
type GetSoundRequest struct {
	SessionRequest
	AlertSound string `json:"alert_sound"`
}

// ReloadConfigRequest gates the config reload behind a deployment
// passphrase.
type ReloadConfigRequest struct {
	SessionRequest
	Passphrase string `json:"passphrase" validate:"required"`
}

// decodeBody decodes a JSON request body into dst, rejecting unknown trailing
// data.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// strOf pulls a string field out of a decoded JSON map.
func strOf(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
