// Package console owns one operator console session: the hero state, the
// telemetry stream feeding it, the path proposal, the traffic simulation and
// the render clock that ticks it.
package console

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadops/operator-console/internal/clock"
	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/internal/display"
	"github.com/roadops/operator-console/internal/hero"
	"github.com/roadops/operator-console/internal/monitor"
	"github.com/roadops/operator-console/internal/path"
	"github.com/roadops/operator-console/internal/recorder"
	"github.com/roadops/operator-console/internal/telemetry"
	"github.com/roadops/operator-console/internal/traffic"
	"github.com/roadops/operator-console/pkg/core"
)

// Options configures a Session.
type Options struct {
	Scenario       string
	Telemetry      config.TelemetryConfig
	Traffic        traffic.Params
	TrafficVisible bool
	TickRate       int
	// Source replaces the demo telemetry generator. It is kept across
	// scenario loads.
	Source      telemetry.Source
	Logger      *slog.Logger
	PathOptions []path.Option
	Now         func() time.Time
}

// FrameListener receives the traffic frame after every tick.
type FrameListener func(core.TrafficFrame)

// View is everything the scene draws for one render frame.
type View struct {
	Hero      display.Pose        `json:"hero"`
	Camera    core.Vec3           `json:"camera"`
	Indicator string              `json:"indicator"`
	Path      display.PathView    `json:"path"`
	Agents    []display.AgentPose `json:"agents"`
}

// Session wires the console components together.
type Session struct {
	opts   Options
	logger *slog.Logger

	hero    *hero.State
	stream  *telemetry.Stream
	path    *path.Session
	traffic *traffic.Simulation
	clock   *clock.Driver

	smoother *display.Smoother
	camera   *display.FollowCamera

	mu       sync.RWMutex
	info     core.Session
	source   telemetry.Source
	recorder *recorder.Recorder
	unsubs   []func()
	closed   bool

	fmu       sync.RWMutex
	listeners []FrameListener

	vmu    sync.Mutex
	pose   display.Pose
	camPos core.Vec3
}

// New builds a stopped session over the configured scenario.
func New(opts Options) (*Session, error) {
	if opts.Scenario == "" {
		opts.Scenario = ScenarioStuck
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	sc, err := LookupScenario(opts.Scenario)
	if err != nil {
		return nil, err
	}

	sim, err := traffic.New(opts.Traffic)
	if err != nil {
		return nil, fmt.Errorf("creating traffic simulation: %w", err)
	}
	sim.SetVisible(opts.TrafficVisible)

	s := &Session{
		opts:     opts,
		logger:   opts.Logger,
		hero:     hero.New(sc.Hero),
		path:     path.NewSession(opts.PathOptions...),
		traffic:  sim,
		clock:    clock.NewDriver(opts.TickRate),
		smoother: display.NewSmoother(),
		camera:   display.NewFollowCamera(core.Vec3{}),
		info: core.Session{
			ID:        uuid.NewString(),
			Scenario:  sc.Name,
			StartTime: opts.Now(),
		},
	}
	s.source = s.newSource(sc)
	s.stream = telemetry.New(telemetry.SourceFunc(s.nextDelta),
		telemetry.WithClock(opts.Now),
		telemetry.WithLogger(opts.Logger),
	)

	// hero first, so later subscribers see the merged state
	s.unsubs = append(s.unsubs,
		s.stream.Subscribe(s.hero.ApplyDelta),
		s.stream.Subscribe(s.retarget),
	)
	s.clock.OnTick(s.onTick)

	s.path.Replace(sc.Path)
	s.resetDisplay(sc.Hero)
	return s, nil
}

func (s *Session) newSource(sc core.Scenario) telemetry.Source {
	if s.opts.Source != nil {
		return s.opts.Source
	}
	return telemetry.NewDemoSource(s.opts.Telemetry.Seed, sc.Hero)
}

func (s *Session) nextDelta(now time.Time) core.TelemetryDelta {
	s.mu.RLock()
	src := s.source
	s.mu.RUnlock()
	return src.Next(now)
}

func (s *Session) retarget(core.TelemetryDelta) {
	h := s.hero.Snapshot()
	s.smoother.SetTarget(display.Pose{Position: h.Position, Rotation: h.Rotation})
}

func (s *Session) resetDisplay(h core.HeroVehicleState) {
	pose := display.Pose{Position: h.Position, Rotation: h.Rotation}
	s.vmu.Lock()
	defer s.vmu.Unlock()
	s.smoother.Reset(pose)
	s.pose = pose
	s.camPos = s.camera.Reset(h.Position)
}

func (s *Session) onTick(clock.Tick) {
	h := s.hero.Snapshot()
	res := s.traffic.Tick(h.Position)
	if len(res.Halted) > 0 {
		s.logger.Debug("traffic holding for hero", "tick", res.Tick, "halted", res.Halted)
	}

	s.vmu.Lock()
	s.pose = s.smoother.Step()
	s.camPos = s.camera.Step(s.pose.Position)
	s.vmu.Unlock()

	s.fmu.RLock()
	ls := make([]FrameListener, len(s.listeners))
	copy(ls, s.listeners)
	s.fmu.RUnlock()
	if len(ls) == 0 {
		return
	}
	f := s.traffic.Frame()
	for _, l := range ls {
		l(f)
	}
}

// Start begins telemetry (when configured to start on its own) and the
// render clock.
func (s *Session) Start() {
	if s.opts.Telemetry.AutoStart {
		s.stream.Start(s.opts.Telemetry.Interval)
	}
	s.clock.Start()
	s.logger.Info("console session started",
		"session", s.Info().ID,
		"scenario", s.Info().Scenario,
		"telemetryInterval", s.opts.Telemetry.Interval,
		"tickRate", s.opts.TickRate,
	)
}

// Close stops telemetry and the clock and drops every subscription the
// session made. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	s.stream.Stop()
	s.clock.Stop()
	for _, u := range unsubs {
		u()
	}
	s.logger.Info("console session closed", "session", s.Info().ID)
}

// AttachRecorder feeds hero states, path revisions and traffic frames into r.
func (s *Session) AttachRecorder(r *recorder.Recorder) {
	unsub := s.stream.Subscribe(r.OnTelemetry)
	s.path.OnChange(r.OnPathChange)
	s.OnTrafficFrame(r.OnTrafficFrame)

	s.mu.Lock()
	s.recorder = r
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()

	// record the scenario's starting point
	r.OnPathChange(s.path.Current())
	r.OnTelemetry(core.TelemetryDelta{})
}

// OnTrafficFrame registers l.
func (s *Session) OnTrafficFrame(l FrameListener) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.listeners = append(s.listeners, l)
}

// LoadScenario resets the hero state and path to the named scenario.
// Telemetry keeps running; the demo generator restarts from the new state.
func (s *Session) LoadScenario(name string) error {
	sc, err := LookupScenario(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.source = s.newSource(sc)
	s.info.Scenario = sc.Name
	s.mu.Unlock()

	s.hero.Reset(sc.Hero)
	s.resetDisplay(sc.Hero)
	s.path.Replace(sc.Path)
	s.logger.Info("scenario loaded", "scenario", sc.Name)
	return nil
}

// SetTrafficVisible shows or hides the traffic layer.
func (s *Session) SetTrafficVisible(v bool) {
	s.traffic.SetVisible(v)
	s.logger.Info("traffic layer toggled", "visible", v)
}

// Info returns the session identity.
func (s *Session) Info() core.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Hero returns the latest merged hero state.
func (s *Session) Hero() core.HeroVehicleState {
	return s.hero.Snapshot()
}

// HeroState exposes the hero state for readers that take snapshots.
func (s *Session) HeroState() hero.Reader {
	return s.hero
}

// Path returns the path proposal session.
func (s *Session) Path() *path.Session {
	return s.path
}

// Traffic returns the traffic simulation.
func (s *Session) Traffic() *traffic.Simulation {
	return s.traffic
}

// Stream returns the telemetry stream.
func (s *Session) Stream() *telemetry.Stream {
	return s.stream
}

// Clock returns the render clock.
func (s *Session) Clock() *clock.Driver {
	return s.clock
}

// View returns the current render view.
func (s *Session) View() View {
	s.vmu.Lock()
	pose, cam := s.pose, s.camPos
	s.vmu.Unlock()

	return View{
		Hero:      pose,
		Camera:    cam,
		Indicator: display.HeroIndicatorColor(s.hero.Snapshot()),
		Path:      display.NewPathView(s.path.Current()),
		Agents:    display.AgentPoses(s.traffic.Frame()),
	}
}

// Status implements monitor.StatusProvider.
func (s *Session) Status() monitor.Status {
	p := s.path.Current()
	f := s.traffic.Frame()
	st := monitor.Status{
		Time:             s.opts.Now(),
		Session:          s.Info(),
		Hero:             s.hero.Snapshot(),
		PathStatus:       p.Status,
		PathPoints:       len(p.Points),
		TelemetryRunning: s.stream.IsRunning(),
		TrafficVisible:   f.Visible,
		TrafficTick:      f.Tick,
		Halted:           f.Halted,
	}
	s.mu.RLock()
	r := s.recorder
	s.mu.RUnlock()
	if r != nil {
		stats := r.Stats()
		st.Recorder = &stats
	}
	return st
}

// LogContext adds the scenario and path status to every log record.
func (s *Session) LogContext() []slog.Attr {
	info := s.Info()
	return []slog.Attr{
		slog.String("scenario", info.Scenario),
		slog.String("pathStatus", string(s.path.Current().Status)),
	}
}

// ApplyTrafficConfig applies the hot-reloadable traffic settings.
func (s *Session) ApplyTrafficConfig(cfg config.TrafficConfig) {
	if cfg.Visible != s.traffic.Visible() {
		s.SetTrafficVisible(cfg.Visible)
	}
}
