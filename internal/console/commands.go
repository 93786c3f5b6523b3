package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roadops/operator-console/internal/dispatcher"
	"github.com/roadops/operator-console/internal/geo"
	"github.com/roadops/operator-console/pkg/core"
)

// Operator commands.
const (
	CmdPathAdd        = ":PATH:ADD:"
	CmdPathMove       = ":PATH:MOVE:"
	CmdPathRemove     = ":PATH:REMOVE:"
	CmdPathSubmit     = ":PATH:SUBMIT:"
	CmdPathResolve    = ":PATH:RESOLVE:"
	CmdPathNew        = ":PATH:NEW:"
	CmdPathReplace    = ":PATH:REPLACE:"
	CmdScenarioLoad   = ":SCENARIO:LOAD:"
	CmdLayerTraffic   = ":LAYER:TRAFFIC:"
	CmdTelemetryStart = ":TELEMETRY:START:"
	CmdTelemetryStop  = ":TELEMETRY:STOP:"
	CmdStatus         = ":STATUS:"
)

// ErrMissingArgument is returned when a command lacks a required argument.
var ErrMissingArgument = errors.New("missing command argument")

// RegisterCommands registers the operator commands for s with d. Path edits
// run synchronously so the caller sees the result.
func (s *Session) RegisterCommands(d *dispatcher.Dispatcher) {
	d.Register(CmdPathAdd, s.handlePathAdd, dispatcher.Logged())
	d.Register(CmdPathMove, s.handlePathMove, dispatcher.Logged())
	d.Register(CmdPathRemove, s.handlePathRemove, dispatcher.Logged())
	d.Register(CmdPathSubmit, s.handlePathSubmit, dispatcher.Logged())
	d.Register(CmdPathResolve, s.handlePathResolve, dispatcher.Logged())
	d.Register(CmdPathNew, s.handlePathNew, dispatcher.Logged())
	d.Register(CmdPathReplace, s.handlePathReplace, dispatcher.Logged())

	d.Register(CmdScenarioLoad, s.handleScenarioLoad, dispatcher.Logged())
	d.Register(CmdLayerTraffic, s.handleLayerTraffic, dispatcher.Logged())
	d.Register(CmdTelemetryStart, s.handleTelemetryStart, dispatcher.Logged())
	d.Register(CmdTelemetryStop, s.handleTelemetryStop, dispatcher.Logged())
	d.Register(CmdStatus, s.handleStatus)
}

// position joins args so both "x,y,z" and "x" "y" "z" are accepted.
func position(args []string) (core.Vec3, error) {
	if len(args) == 0 {
		return core.Vec3{}, fmt.Errorf("position: %w", ErrMissingArgument)
	}
	return geo.ParsePosition(strings.Join(args, ","))
}

func (s *Session) handlePathAdd(e dispatcher.Event) (any, error) {
	pos, err := position(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to add path point: %w", err)
	}
	pt, err := s.path.AddPoint(pos)
	if err != nil {
		return nil, fmt.Errorf("failed to add path point: %w", err)
	}
	return pt, nil
}

func (s *Session) handlePathMove(e dispatcher.Event) (any, error) {
	id := e.Arg(0)
	if id == "" {
		return nil, fmt.Errorf("failed to move path point: point id: %w", ErrMissingArgument)
	}
	pos, err := position(e.Args[1:])
	if err != nil {
		return nil, fmt.Errorf("failed to move path point %s: %w", id, err)
	}
	if err := s.path.UpdatePoint(id, pos); err != nil {
		return nil, fmt.Errorf("failed to move path point %s: %w", id, err)
	}
	return s.path.Current(), nil
}

func (s *Session) handlePathRemove(e dispatcher.Event) (any, error) {
	id := e.Arg(0)
	if id == "" {
		return nil, fmt.Errorf("failed to remove path point: point id: %w", ErrMissingArgument)
	}
	if err := s.path.RemovePoint(id); err != nil {
		return nil, fmt.Errorf("failed to remove path point %s: %w", id, err)
	}
	return s.path.Current(), nil
}

func (s *Session) handlePathSubmit(dispatcher.Event) (any, error) {
	if err := s.path.Submit(); err != nil {
		return nil, fmt.Errorf("failed to submit path: %w", err)
	}
	return s.path.Current(), nil
}

func (s *Session) handlePathResolve(e dispatcher.Event) (any, error) {
	outcome := core.PathStatus(strings.ToLower(strings.TrimSpace(e.Arg(0))))
	if err := s.path.Resolve(outcome); err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return s.path.Current(), nil
}

func (s *Session) handlePathNew(dispatcher.Event) (any, error) {
	return s.path.NewProposal(), nil
}

func (s *Session) handlePathReplace(e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 {
		return nil, fmt.Errorf("failed to replace path: points: %w", ErrMissingArgument)
	}
	pts, err := geo.ParsePoints(strings.Join(e.Args, ","))
	if err != nil {
		return nil, fmt.Errorf("failed to replace path: %w", err)
	}
	return s.path.Replace(pts), nil
}

func (s *Session) handleScenarioLoad(e dispatcher.Event) (any, error) {
	name := e.Arg(0)
	if name == "" {
		name = ScenarioStuck
	}
	if err := s.LoadScenario(name); err != nil {
		return nil, err
	}
	return s.Info(), nil
}

func (s *Session) handleLayerTraffic(e dispatcher.Event) (any, error) {
	v := !s.traffic.Visible()
	if arg := e.Arg(0); arg != "" {
		var err error
		v, err = strconv.ParseBool(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to toggle traffic layer: %w", err)
		}
	}
	s.SetTrafficVisible(v)
	return v, nil
}

func (s *Session) handleTelemetryStart(e dispatcher.Event) (any, error) {
	interval := s.opts.Telemetry.Interval
	if arg := e.Arg(0); arg != "" {
		var err error
		interval, err = time.ParseDuration(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to start telemetry: %w", err)
		}
	}
	s.stream.Start(interval)
	return s.stream.IsRunning(), nil
}

func (s *Session) handleTelemetryStop(dispatcher.Event) (any, error) {
	s.stream.Stop()
	return s.stream.IsRunning(), nil
}

func (s *Session) handleStatus(dispatcher.Event) (any, error) {
	return s.Status(), nil
}
