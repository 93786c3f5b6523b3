package gormstorage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadops/operator-console/internal/database"
	"github.com/roadops/operator-console/internal/logging"
	"github.com/roadops/operator-console/internal/model"
	"github.com/roadops/operator-console/internal/storage"
	"github.com/roadops/operator-console/pkg/core"
)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{
		DB:         nil,
		LogManager: logging.NewSlogManager(),
	})
}

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestNew(t *testing.T) {
	b := newTestBackend()
	require.NotNil(t, b)
	assert.Equal(t, DefaultFlushInterval, b.deps.FlushInterval)
}

func TestInitClose(t *testing.T) {
	b := newTestBackend()

	err := b.Init()
	require.NoError(t, err)
	require.NotNil(t, b.queues)
	require.NotNil(t, b.stopChan)

	require.NoError(t, b.Close())
	// second close is a no-op
	require.NoError(t, b.Close())
}

func TestCloseWithoutInit(t *testing.T) {
	assert.NoError(t, newTestBackend().Close())
}

func TestRecord_QueuesToInternalQueues(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{ID: "s1"}))
	require.NoError(t, b.RecordHeroState(&core.HeroVehicleState{AutonomyState: core.AutonomyStuck}))
	require.NoError(t, b.RecordPathProposal(&core.PathProposal{ID: "p", Status: core.PathDraft}))
	require.NoError(t, b.RecordTrafficFrame(&core.TrafficFrame{Tick: 30}))

	assert.Equal(t, 1, b.queues.HeroStates.Len())
	assert.Equal(t, 1, b.queues.PathProposals.Len())
	assert.Equal(t, 1, b.queues.TrafficFrames.Len())
	assert.Equal(t, 3, b.Pending())

	// rows carry the session id
	assert.Equal(t, "s1", b.queues.HeroStates.Pop().SessionID)
}

func TestFlush_NoDB(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordHeroState(&core.HeroVehicleState{}))
	require.NoError(t, b.Flush())
	assert.Equal(t, 1, b.Pending(), "queue-only mode keeps rows")
	assert.NoError(t, b.EndSession())
}

func TestSQLite_WritesRows(t *testing.T) {
	db, err := database.OpenSQLiteMemory("gormstorage_writes_rows")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, SQLite: true, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	defer b.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.StartSession(&core.Session{ID: "s1", Scenario: "stuck", StartTime: start}))

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordHeroState(&core.HeroVehicleState{
			Position:      core.Vec3{X: 1.75, Z: float64(i)},
			AutonomyState: core.AutonomyStuck,
			Timestamp:     start.Add(time.Duration(i) * 2 * time.Second),
		}))
	}
	require.NoError(t, b.RecordPathProposal(&core.PathProposal{
		ID:     "p1",
		Status: core.PathSubmitted,
		Points: []core.PathPoint{
			{ID: "a", Position: core.Vec3{X: 1.75, Y: 0.1, Z: 5}},
			{ID: "b", Position: core.Vec3{X: -1.75, Y: 0.1, Z: 15}},
		},
		CreatedAt: start,
		UpdatedAt: start,
	}))
	require.NoError(t, b.RecordTrafficFrame(&core.TrafficFrame{
		Tick:    30,
		Time:    start,
		Visible: true,
		Halted:  []int{0},
		Agents: []core.TrafficAgent{
			{ID: 0, Lane: 1.75, Direction: core.Forward, Speed: 1, Z: -5},
			{ID: 1, Lane: -5.25, Direction: core.Backward, Speed: 1, Z: 45},
		},
	}))

	require.NoError(t, b.EndSession())
	assert.Equal(t, 0, b.Pending())

	counts := map[any]int64{
		&model.HeroState{}:         3,
		&model.PathProposal{}:      1,
		&model.PathPoint{}:         2,
		&model.TrafficFrame{}:      1,
		&model.TrafficAgentState{}: 2,
	}
	for m, want := range counts {
		var got int64
		require.NoError(t, db.Model(m).Count(&got).Error)
		assert.Equal(t, want, got, "%T", m)
	}

	var ended int64
	require.NoError(t, db.Model(&model.Session{}).Where("id = ? AND end_time IS NOT NULL", "s1").Count(&ended).Error)
	assert.Equal(t, int64(1), ended)
}
