package influx

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/pkg/core"
)

func readBackup(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	return string(data)
}

func TestNewManager_Buckets(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "")
	assert.Equal(t, []string{"telemetry", PerformanceBucket}, m.BucketNames)
	assert.Equal(t, "telemetry", m.Bucket())

	m = NewManager(zerolog.Nop(), config.InfluxConfig{Bucket: "fleet"}, "")
	assert.Equal(t, "fleet", m.Bucket())
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: false}, "")
	assert.ErrorIs(t, m.Connect(), ErrDisabled)
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "")
	err := m.RecordHeroState(&core.HeroVehicleState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup writer not available")
}

func TestBackupWriter_RecordsSession(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, backup)
	require.NoError(t, m.UseBackup())
	require.NoError(t, m.Init())

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.StartSession(&core.Session{ID: "s1", Scenario: "stuck"}))
	require.NoError(t, m.RecordHeroState(&core.HeroVehicleState{
		Position:      core.Vec3{X: 1.75, Z: 3},
		AutonomyState: core.AutonomyStuck,
		StuckReason:   core.Ptr("obstacle_detected"),
		Velocity:      core.Ptr(0.0),
		Timestamp:     ts,
	}))
	require.NoError(t, m.RecordPathProposal(&core.PathProposal{
		ID:        "p1",
		Status:    core.PathDraft,
		Points:    []core.PathPoint{{ID: "a"}, {ID: "b"}},
		UpdatedAt: ts,
	}))
	require.NoError(t, m.RecordTrafficFrame(&core.TrafficFrame{
		Tick: 30, Time: ts, Visible: true, Halted: []int{0},
		Agents: make([]core.TrafficAgent, 8),
	}))
	require.NoError(t, m.EndSession())
	require.NoError(t, m.Close())

	lines := strings.Split(strings.TrimSpace(readBackup(t, backup)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "hero_state,"))
	assert.Contains(t, lines[0], "autonomy_state=stuck")
	assert.Contains(t, lines[0], "session=s1")
	assert.Contains(t, lines[0], "stuck_reason=obstacle_detected")
	assert.Contains(t, lines[0], "x=1.75")
	assert.Contains(t, lines[0], "velocity=0")
	assert.NotContains(t, lines[0], "battery_level")

	assert.True(t, strings.HasPrefix(lines[1], "path_proposal,"))
	assert.Contains(t, lines[1], "status=draft")
	assert.Contains(t, lines[1], "points=2i")

	assert.True(t, strings.HasPrefix(lines[2], "traffic,"))
	assert.Contains(t, lines[2], "agents=8i")
	assert.Contains(t, lines[2], "halted=1i")
	assert.Contains(t, lines[2], "tick=30i")
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, filepath.Join(t.TempDir(), "b.gz"))
	require.NoError(t, m.UseBackup())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestParseMetric(t *testing.T) {
	bucket, point, err := ParseMetric([]string{
		`"console_performance"`,
		"operator",
		"tag::operator::alice",
		"field::int::edits::4",
		"field::float::latency::0.25",
		"field::string::mode::manual",
	})
	require.NoError(t, err)
	assert.Equal(t, "console_performance", bucket)
	assert.Equal(t, "operator", point.Name())

	require.Len(t, point.TagList(), 1)
	assert.Equal(t, "operator", point.TagList()[0].Key)
	assert.Equal(t, "alice", point.TagList()[0].Value)

	fields := map[string]any{}
	for _, f := range point.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(4), fields["edits"])
	assert.Equal(t, 0.25, fields["latency"])
	assert.Equal(t, "manual", fields["mode"])
}

func TestParseMetric_Errors(t *testing.T) {
	_, _, err := ParseMetric([]string{"only"})
	require.Error(t, err)

	_, _, err = ParseMetric([]string{"b", "m", "field::int::n::abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to int")

	_, _, err = ParseMetric([]string{"b", "m", "field::float::n::x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to float")
}
