// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints session tokens as signed JWTs. Sessions compare tokens
// by string equality, so the signature mostly serves as tamper evidence in
// logs and client storage; a missing secret falls back to a random one per
// process.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. With an empty secret a random per-process
// key is generated, which invalidates all tokens on restart.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		key = []byte(hex.EncodeToString(buf))
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: key, ttl: ttl}
}

// Mint signs a fresh session token for username.
func (i *TokenIssuer) Mint(username string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		ID:        newJTI(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func newJTI() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
