package recorder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/internal/hero"
	"github.com/roadops/operator-console/internal/storage"
	"github.com/roadops/operator-console/internal/storage/memory"
	"github.com/roadops/operator-console/pkg/core"
)

func newMemory(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(&core.Session{ID: "s1", Scenario: "stuck", StartTime: time.Now()}))
	return b
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(Dependencies{}, nil)
	require.Error(t, err)
}

func TestOnTelemetry_RecordsMergedState(t *testing.T) {
	h := hero.New(core.HeroVehicleState{AutonomyState: core.AutonomyNominal})
	b := newMemory(t)
	r, err := New(Dependencies{Hero: h}, b)
	require.NoError(t, err)

	d := core.TelemetryDelta{Position: &core.Vec3{X: 1.75}, Timestamp: time.Now()}
	h.ApplyDelta(d)
	r.OnTelemetry(d)

	assert.Equal(t, 1, r.Stats().PendingHeroStates)
	require.NoError(t, r.Flush())
	assert.Equal(t, 1, b.Counts().HeroStates)
	assert.Equal(t, int64(1), r.Stats().Flushed)
	assert.Equal(t, 0, r.Stats().PendingHeroStates)
}

func TestOnTelemetry_NoHero(t *testing.T) {
	r, err := New(Dependencies{}, storage.Noop{})
	require.NoError(t, err)
	r.OnTelemetry(core.TelemetryDelta{})
	assert.Equal(t, 0, r.Stats().PendingHeroStates)
}

func TestOnTrafficFrame_Samples(t *testing.T) {
	b := newMemory(t)
	r, err := New(Dependencies{TrafficEvery: 3}, b)
	require.NoError(t, err)

	for tick := uint64(1); tick <= 10; tick++ {
		r.OnTrafficFrame(core.TrafficFrame{Tick: tick})
	}
	require.NoError(t, r.Flush())
	assert.Equal(t, 3, b.Counts().TrafficFrames)
}

func TestOnTrafficFrame_Disabled(t *testing.T) {
	r, err := New(Dependencies{}, storage.Noop{})
	require.NoError(t, err)
	r.OnTrafficFrame(core.TrafficFrame{Tick: 30})
	assert.Equal(t, 0, r.Stats().PendingTrafficFrames)
}

func TestOnPathChange_KeepsOrder(t *testing.T) {
	b := newMemory(t)
	r, err := New(Dependencies{}, b)
	require.NoError(t, err)

	r.OnPathChange(core.PathProposal{ID: "p", Status: core.PathDraft})
	r.OnPathChange(core.PathProposal{ID: "p", Status: core.PathSubmitted})
	require.NoError(t, r.Flush())

	latest, ok := b.LatestProposal()
	require.True(t, ok)
	assert.Equal(t, core.PathSubmitted, latest.Status)
	assert.Equal(t, 2, b.Counts().PathProposals)
}

type failingBackend struct {
	storage.Noop
}

func (failingBackend) RecordPathProposal(*core.PathProposal) error {
	return errors.New("disk full")
}

func TestFlush_CountsFailures(t *testing.T) {
	r, err := New(Dependencies{}, failingBackend{})
	require.NoError(t, err)

	r.OnPathChange(core.PathProposal{ID: "p"})
	r.OnTrafficFrame(core.TrafficFrame{})

	err = r.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path proposal: disk full")
	assert.Equal(t, int64(1), r.Stats().Failed)
	assert.Equal(t, int64(0), r.Stats().Flushed)
	assert.Equal(t, 0, r.Stats().PendingPathProposals)
}

func TestFlush_Empty(t *testing.T) {
	r, err := New(Dependencies{}, storage.Noop{})
	require.NoError(t, err)
	require.NoError(t, r.Flush())
	assert.Equal(t, Stats{}, r.Stats())
}

func TestStartStop_FlushesOnLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := newMemory(t)
	r, err := New(Dependencies{FlushInterval: 10 * time.Millisecond}, b)
	require.NoError(t, err)

	r.Start()
	r.Start()
	r.OnPathChange(core.PathProposal{ID: "p"})

	require.Eventually(t, func() bool { return b.Counts().PathProposals == 1 }, 2*time.Second, 5*time.Millisecond)

	r.OnPathChange(core.PathProposal{ID: "p", Status: core.PathSubmitted})
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
	assert.Equal(t, 2, b.Counts().PathProposals)
}
