package storage

import (
	"errors"
	"fmt"

	"github.com/roadops/operator-console/pkg/core"
)

// Backend is the interface all recording sinks must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// State recording
	RecordHeroState(s *core.HeroVehicleState) error
	RecordPathProposal(p *core.PathProposal) error
	RecordTrafficFrame(f *core.TrafficFrame) error
}

// Exportable is an optional interface for backends that write a recording
// file when a session ends.
type Exportable interface {
	ExportedFilePath() string
}

// Multi fans every call out to a list of backends, so a session can be
// recorded to the database while it is also published over MQTT and cached
// in Redis. Every backend is called even when an earlier one fails; the
// failures are joined.
type Multi struct {
	backends []Backend
	names    []string
}

// NewMulti creates an empty fan-out backend.
func NewMulti() *Multi {
	return &Multi{}
}

// Add appends a named backend.
func (m *Multi) Add(name string, b Backend) {
	m.backends = append(m.backends, b)
	m.names = append(m.names, name)
}

// Len returns the number of backends.
func (m *Multi) Len() int {
	return len(m.backends)
}

// Names returns the backend names in the order they were added.
func (m *Multi) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Exported returns the export paths of backends that wrote one.
func (m *Multi) Exported() []string {
	var out []string
	for _, b := range m.backends {
		if e, ok := b.(Exportable); ok && e.ExportedFilePath() != "" {
			out = append(out, e.ExportedFilePath())
		}
	}
	return out
}

func (m *Multi) each(op string, fn func(Backend) error) error {
	var errs []error
	for i, b := range m.backends {
		if err := fn(b); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", m.names[i], op, err))
		}
	}
	return errors.Join(errs...)
}

// Init initializes every backend.
func (m *Multi) Init() error {
	return m.each("init", Backend.Init)
}

// Close closes every backend.
func (m *Multi) Close() error {
	return m.each("close", Backend.Close)
}

// StartSession begins a session on every backend.
func (m *Multi) StartSession(s *core.Session) error {
	return m.each("start session", func(b Backend) error { return b.StartSession(s) })
}

// EndSession ends the session on every backend.
func (m *Multi) EndSession() error {
	return m.each("end session", Backend.EndSession)
}

// RecordHeroState records s on every backend.
func (m *Multi) RecordHeroState(s *core.HeroVehicleState) error {
	return m.each("record hero state", func(b Backend) error { return b.RecordHeroState(s) })
}

// RecordPathProposal records p on every backend.
func (m *Multi) RecordPathProposal(p *core.PathProposal) error {
	return m.each("record path proposal", func(b Backend) error { return b.RecordPathProposal(p) })
}

// RecordTrafficFrame records f on every backend.
func (m *Multi) RecordTrafficFrame(f *core.TrafficFrame) error {
	return m.each("record traffic frame", func(b Backend) error { return b.RecordTrafficFrame(f) })
}

// Noop is a Backend that records nothing.
type Noop struct{}

func (Noop) Init() error                                  { return nil }
func (Noop) Close() error                                 { return nil }
func (Noop) StartSession(*core.Session) error             { return nil }
func (Noop) EndSession() error                            { return nil }
func (Noop) RecordHeroState(*core.HeroVehicleState) error { return nil }
func (Noop) RecordPathProposal(*core.PathProposal) error  { return nil }
func (Noop) RecordTrafficFrame(*core.TrafficFrame) error  { return nil }
