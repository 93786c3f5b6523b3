// Package monitor periodically writes the console status to a file.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roadops/operator-console/internal/logging"
	"github.com/roadops/operator-console/internal/recorder"
	"github.com/roadops/operator-console/pkg/core"
)

// StatusFileName is written inside Dependencies.StatusDir.
const StatusFileName = "status.txt"

// Status is a snapshot of the running console.
type Status struct {
	Time             time.Time             `json:"time"`
	Session          core.Session          `json:"session"`
	Hero             core.HeroVehicleState `json:"hero"`
	PathStatus       core.PathStatus       `json:"pathStatus"`
	PathPoints       int                   `json:"pathPoints"`
	TelemetryRunning bool                  `json:"telemetryRunning"`
	TrafficVisible   bool                  `json:"trafficVisible"`
	TrafficTick      uint64                `json:"trafficTick"`
	Halted           []int                 `json:"halted"`
	Recorder         *recorder.Stats       `json:"recorder,omitempty"`
}

// StatusProvider reports the current status.
type StatusProvider interface {
	Status() Status
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Provider   StatusProvider
	LogManager *logging.SlogManager
	StatusDir  string
	Interval   time.Duration
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu       sync.RWMutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopChan != nil
}

// StatusPath is the file the monitor writes.
func (s *Service) StatusPath() string {
	return filepath.Join(s.deps.StatusDir, StatusFileName)
}

// GetProgramStatus returns the current status as printable sections and as
// a value.
func (s *Service) GetProgramStatus(
	hero bool,
	path bool,
	writes bool,
) (output []string, status Status) {
	status = s.deps.Provider.Status()

	if hero {
		output = append(output, section(status.Hero))
	}
	if path {
		output = append(output, section(struct {
			Status  core.PathStatus `json:"status"`
			Points  int             `json:"points"`
			Traffic bool            `json:"trafficVisible"`
			Halted  []int           `json:"halted"`
		}{status.PathStatus, status.PathPoints, status.TrafficVisible, status.Halted}))
	}
	if writes && status.Recorder != nil {
		output = append(output, section(status.Recorder))
	}
	return output, status
}

func section(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "%s"}`, err)
	}
	return string(b)
}

// WriteStatus rewrites the status file once.
func (s *Service) WriteStatus() error {
	lines, _ := s.GetProgramStatus(true, true, true)
	if err := os.MkdirAll(s.deps.StatusDir, 0755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}
	var out []byte
	for _, line := range lines {
		out = append(out, line...)
		out = append(out, '\n')
	}
	return os.WriteFile(s.StatusPath(), out, 0644)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return nil
	}
	if s.deps.Provider == nil {
		return fmt.Errorf("monitor has no status provider")
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stopChan, s.done)
	return nil
}

func (s *Service) loop(stop, done chan struct{}) {
	defer close(done)

	logger := s.logger()
	logger.Debug("Starting status monitor goroutine", "path", s.StatusPath())

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.WriteStatus(); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.done
	s.stopChan, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.Default()
	}
	return s.deps.LogManager.Logger()
}
