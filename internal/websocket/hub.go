// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package websocket pushes scan results to connected dashboard clients. The
// hub subscribes to the event bus and forwards each user's snapshots to that
// user's sockets only.
package websocket

import (
	"context"
	"sync"

	"github.com/vigil-watch/vigil/internal/events"
	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/metrics"
)

// Message types sent over the socket.
const (
	MessageTypeScanCompleted = "scan_completed"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
)

// Message is the wire envelope for WebSocket traffic.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks connected clients per user and fans scan events out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	bus        *events.Bus
}

// NewHub creates a hub reading scan events from bus.
func NewHub(bus *events.Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		bus:        bus,
	}
}

// Serve runs the hub under supervision until ctx is canceled. Client
// lifecycle events take priority over broadcasts so the client set is always
// consistent before a message fans out.
func (h *Hub) Serve(ctx context.Context) error {
	scans, err := h.bus.SubscribeScanCompleted(ctx)
	if err != nil {
		return err
	}
	logger := logging.WithComponent("websocket-hub")
	logger.Info().Msg("hub started")

	for {
		// Lifecycle first, non-blocking.
		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.drop(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			logger.Info().Msg("hub stopped")
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.drop(client)
		case ev, ok := <-scans:
			if !ok {
				h.closeAll()
				return ctx.Err()
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
	logging.Debug().Str("user", client.username).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
	logging.Debug().Str("user", client.username).Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcast sends one scan event to the owning user's clients. Slow clients
// with a full send buffer are dropped rather than blocking the hub.
func (h *Hub) broadcast(ev events.ScanCompleted) {
	msg := Message{Type: MessageTypeScanCompleted, Data: ev}

	h.mu.RLock()
	var stale []*Client
	for client := range h.clients {
		if client.username != ev.Username {
			continue
		}
		select {
		case client.send <- msg:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		logging.Warn().Str("user", client.username).Msg("dropping slow websocket client")
		h.drop(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	metrics.WebSocketClients.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
