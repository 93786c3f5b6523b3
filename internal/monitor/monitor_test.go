package monitor

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roadops/operator-console/internal/recorder"
	"github.com/roadops/operator-console/pkg/core"
)

type staticProvider struct {
	status Status
}

func (p staticProvider) Status() Status {
	return p.status
}

func testStatus() Status {
	return Status{
		Session:    core.Session{ID: "s1", Scenario: "stuck"},
		Hero:       core.HeroVehicleState{AutonomyState: core.AutonomyStuck, StuckReason: core.Ptr("obstacle_detected")},
		PathStatus: core.PathDraft,
		PathPoints: 4,
		Halted:     []int{0},
		Recorder:   &recorder.Stats{Flushed: 12},
	}
}

func TestGetProgramStatus_Sections(t *testing.T) {
	s := NewService(Dependencies{Provider: staticProvider{testStatus()}})

	out, st := s.GetProgramStatus(true, true, true)
	require.Len(t, out, 3)
	assert.Contains(t, out[0], `"autonomyState": "stuck"`)
	assert.Contains(t, out[1], `"points": 4`)
	assert.Contains(t, out[2], `"flushed": 12`)
	assert.Equal(t, "s1", st.Session.ID)

	out, _ = s.GetProgramStatus(false, true, false)
	assert.Len(t, out, 1)
}

func TestGetProgramStatus_NoRecorder(t *testing.T) {
	st := testStatus()
	st.Recorder = nil
	s := NewService(Dependencies{Provider: staticProvider{st}})

	out, _ := s.GetProgramStatus(true, true, true)
	assert.Len(t, out, 2)
}

func TestWriteStatus(t *testing.T) {
	dir := t.TempDir()
	s := NewService(Dependencies{Provider: staticProvider{testStatus()}, StatusDir: dir})

	require.NoError(t, s.WriteStatus())

	data, err := os.ReadFile(s.StatusPath())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "obstacle_detected"))
}

func TestStart_RequiresProvider(t *testing.T) {
	s := NewService(Dependencies{})
	require.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	s := NewService(Dependencies{
		Provider:  staticProvider{testStatus()},
		StatusDir: dir,
		Interval:  10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(s.StatusPath())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
