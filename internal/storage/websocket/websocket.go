// Package wsstorage streams console state to a remote viewer over a
// WebSocket. Session start and end are acknowledged by the viewer; state
// updates are fire-and-forget.
package wsstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/pkg/core"
	"github.com/roadops/operator-console/pkg/streaming"
)

// Backend implements storage.Backend on top of a viewer connection.
type Backend struct {
	link *link
	cfg  config.WebSocketConfig
	now  func() time.Time

	mu      sync.Mutex
	session string
}

// New creates a backend for cfg. Nothing is dialed until Init.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		link: newLink(logger.With("component", "viewer_stream")),
		cfg:  cfg,
		now:  time.Now,
	}
}

// Dial creates a backend and connects it.
func Dial(cfg config.WebSocketConfig, logger *slog.Logger) (*Backend, error) {
	b := New(cfg, logger)
	if err := b.Init(); err != nil {
		return nil, err
	}
	return b, nil
}

// Init connects to the viewer unless already connected.
func (b *Backend) Init() error {
	b.link.mu.Lock()
	connected := b.link.conn != nil
	b.link.mu.Unlock()
	if connected {
		return nil
	}
	return b.link.dial(b.cfg.URL, b.cfg.Secret)
}

// Close sends a close frame and stops the connection loops.
func (b *Backend) Close() error {
	return b.link.close()
}

// StartSession announces the session and waits for the viewer to ack it.
// The announcement is replayed after a reconnect.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.session = s.ID
	b.mu.Unlock()

	data, err := b.marshal(streaming.TypeSessionStart, streaming.SessionStartPayload{Session: s})
	if err != nil {
		return err
	}
	b.link.mu.Lock()
	b.link.hello = data
	b.link.mu.Unlock()

	return b.link.sendAndWait(data, streaming.TypeSessionStart, ackTimeout)
}

// EndSession announces the end of the session and waits for the ack.
func (b *Backend) EndSession() error {
	data, err := b.marshal(streaming.TypeSessionEnd, struct{}{})
	if err != nil {
		return err
	}
	b.link.mu.Lock()
	b.link.hello = nil
	b.link.mu.Unlock()

	return b.link.sendAndWait(data, streaming.TypeSessionEnd, ackTimeout)
}

// RecordHeroState streams a hero snapshot.
func (b *Backend) RecordHeroState(s *core.HeroVehicleState) error {
	return b.send(streaming.TypeHeroState, s)
}

// RecordPathProposal streams the current path.
func (b *Backend) RecordPathProposal(p *core.PathProposal) error {
	return b.send(streaming.TypePathProposal, p)
}

// RecordTrafficFrame streams a traffic frame.
func (b *Backend) RecordTrafficFrame(f *core.TrafficFrame) error {
	return b.send(streaming.TypeTrafficFrame, f)
}

func (b *Backend) marshal(msgType string, payload any) ([]byte, error) {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()

	data, err := streaming.Marshal(msgType, session, b.now(), payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) send(msgType string, payload any) error {
	data, err := b.marshal(msgType, payload)
	if err != nil {
		return err
	}
	if !b.link.send(data) {
		return fmt.Errorf("dropped %s: send queue full", msgType)
	}
	return nil
}
