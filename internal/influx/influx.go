// Package influx writes console telemetry as InfluxDB time series. When the
// server is unreachable points are appended as line protocol to a gzip
// backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/pkg/core"
)

// Measurements written by the backend.
const (
	MeasurementHero    = "hero_state"
	MeasurementPath    = "path_proposal"
	MeasurementTraffic = "traffic"
)

// PerformanceBucket receives operator-pushed metrics.
const PerformanceBucket = "console_performance"

// ErrDisabled is returned by Connect when influx is turned off in config.
var ErrDisabled = errors.New("influx.enabled is false")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
	session    string
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "telemetry"
	}
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: []string{bucket, PerformanceBucket},
		Logger:      log,
		BackupPath:  backupPath,
		cfg:         cfg,
	}
}

// Bucket is the bucket session data is written to.
func (m *Manager) Bucket() string {
	return m.BucketNames[0]
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer.
func (m *Manager) Connect() error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		if err := m.UseBackup(); err != nil {
			return err
		}
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBuckets(); err != nil {
		return err
	}
	m.CreateWriters()
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

// UseBackup opens the gzip backup file for appending.
func (m *Manager) UseBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := m.cfg.Org

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure buckets exist with 30 day retention
	for _, bucket := range m.BucketNames {
		_, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 30,
			})
			if err != nil {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(m.cfg.Org, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Init is a no-op; Connect sets the manager up.
func (m *Manager) Init() error {
	return nil
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// StartSession tags subsequent points with the session id.
func (m *Manager) StartSession(s *core.Session) error {
	m.mu.Lock()
	m.session = s.ID
	m.mu.Unlock()
	return nil
}

// EndSession flushes buffered points.
func (m *Manager) EndSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.BackupWriter != nil {
		return m.BackupWriter.Flush()
	}
	return nil
}

func (m *Manager) sessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// RecordHeroState writes a hero_state point.
func (m *Manager) RecordHeroState(s *core.HeroVehicleState) error {
	return m.WritePoint(context.Background(), m.Bucket(), HeroPoint(m.sessionID(), *s))
}

// RecordPathProposal writes a path_proposal point.
func (m *Manager) RecordPathProposal(p *core.PathProposal) error {
	return m.WritePoint(context.Background(), m.Bucket(), PathPoint(m.sessionID(), *p))
}

// RecordTrafficFrame writes a traffic point.
func (m *Manager) RecordTrafficFrame(f *core.TrafficFrame) error {
	return m.WritePoint(context.Background(), m.Bucket(), TrafficPoint(m.sessionID(), *f))
}

// HeroPoint builds the hero_state point for s. Unknown optional values are
// left out rather than written as zero.
func HeroPoint(session string, s core.HeroVehicleState) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementHero).
		AddTag("session", session).
		AddTag("autonomy_state", string(s.AutonomyState)).
		AddField("x", s.Position.X).
		AddField("y", s.Position.Y).
		AddField("z", s.Position.Z).
		AddField("rotation", s.Rotation).
		SetTime(s.Timestamp)
	if s.StuckReason != nil {
		p.AddTag("stuck_reason", *s.StuckReason)
	}
	if s.Velocity != nil {
		p.AddField("velocity", *s.Velocity)
	}
	if s.BatteryLevel != nil {
		p.AddField("battery_level", *s.BatteryLevel)
	}
	return p
}

// PathPoint builds the path_proposal point for a proposal revision.
func PathPoint(session string, pp core.PathProposal) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementPath).
		AddTag("session", session).
		AddTag("proposal", pp.ID).
		AddTag("status", string(pp.Status)).
		AddField("points", len(pp.Points)).
		SetTime(pp.UpdatedAt)
}

// TrafficPoint builds the traffic point for a frame.
func TrafficPoint(session string, f core.TrafficFrame) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementTraffic).
		AddTag("session", session).
		AddTag("visible", strconv.FormatBool(f.Visible)).
		AddField("tick", int64(f.Tick)).
		AddField("agents", len(f.Agents)).
		AddField("halted", len(f.Halted)).
		SetTime(f.Time)
}

// ParseMetric parses an operator-pushed metric and returns a bucket name and
// point.
//
//	0 = bucket name
//	1 = measurement name
//	n with "tag" prefix = tag name
//	n with "field" prefix = field
//
// Tag and field values use "::" separators: tag::name::value and
// field::type::name::value with type one of string, int, float.
func ParseMetric(data []string) (
	bucket string,
	point *influxdb2_write.Point,
	err error,
) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("metric needs bucket and measurement, got %d values", len(data))
	}
	for i, v := range data {
		data[i] = strings.TrimSpace(strings.Trim(v, `"`))
	}

	bucket = data[0]
	measurementName := data[1]
	point = influxdb2_write.NewPointWithMeasurement(measurementName)

	// add tags
	for _, tag := range data[2:] {
		if !strings.HasPrefix(tag, "tag::") {
			continue
		}
		parts := strings.Split(tag, "::")
		if len(parts) >= 3 {
			point.AddTag(parts[1], parts[2])
		}
	}

	// add fields
	for _, field := range data[2:] {
		if !strings.HasPrefix(field, "field::") {
			continue
		}
		parts := strings.Split(field, "::")
		if len(parts) < 4 {
			continue
		}
		fieldType := parts[1]
		fieldName := parts[2]
		fieldValue := parts[3]

		switch fieldType {
		case "string":
			point.AddField(fieldName, fieldValue)
		case "int":
			intVal, err := strconv.Atoi(fieldValue)
			if err != nil {
				return "", nil, fmt.Errorf("error converting field value '%s' to int: %w", fieldValue, err)
			}
			point.AddField(fieldName, intVal)
		case "float":
			floatVal, err := strconv.ParseFloat(fieldValue, 64)
			if err != nil {
				return "", nil, fmt.Errorf("error converting field value '%s' to float: %w", fieldValue, err)
			}
			point.AddField(fieldName, floatVal)
		}
	}

	return bucket, point, nil
}
