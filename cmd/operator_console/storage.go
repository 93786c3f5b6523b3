package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/internal/database"
	"github.com/roadops/operator-console/internal/influx"
	"github.com/roadops/operator-console/internal/logging"
	"github.com/roadops/operator-console/internal/storage"
	gormstorage "github.com/roadops/operator-console/internal/storage/gorm"
	"github.com/roadops/operator-console/internal/storage/memory"
	mqttstorage "github.com/roadops/operator-console/internal/storage/mqtt"
	redisstorage "github.com/roadops/operator-console/internal/storage/redis"
	sqlitestorage "github.com/roadops/operator-console/internal/storage/sqlite"
	wsstorage "github.com/roadops/operator-console/internal/storage/websocket"
)

// storageDeps is what the storage factory needs from the serve command.
type storageDeps struct {
	LogManager   *logging.SlogManager
	Zerolog      zerolog.Logger
	SessionStart time.Time
}

// storageSet is the composed backend plus handles the command needs later.
type storageSet struct {
	Backend *storage.Multi
	Influx  *influx.Manager
	closers []func() error
}

func (s *storageSet) Close() {
	for _, c := range s.closers {
		_ = c()
	}
}

func createStorageBackend(storageCfg config.StorageConfig, deps storageDeps) (*storageSet, error) {
	logger := deps.LogManager.Logger()
	set := &storageSet{Backend: storage.NewMulti()}

	primary, err := createPrimaryBackend(storageCfg, deps, set)
	if err != nil {
		return nil, err
	}
	set.Backend.Add(storageCfg.Type, primary)

	if mq := config.GetMQTTConfig(); mq.Enabled {
		b, err := mqttstorage.Dial(mq, logger)
		if err != nil {
			logger.Error("MQTT sink unavailable", "broker", mq.Broker, "error", err)
		} else {
			set.Backend.Add("mqtt", b)
			logger.Info("MQTT sink initialized", "broker", mq.Broker)
		}
	}

	if rc := config.GetRedisConfig(); rc.Enabled {
		set.Backend.Add("redis", redisstorage.Dial(rc))
		logger.Info("Redis cache initialized", "addr", rc.Addr)
	}

	if wc := config.GetWebSocketConfig(); wc.Enabled {
		b, err := wsstorage.Dial(wc, logger)
		if err != nil {
			logger.Error("Viewer stream unavailable", "url", wc.URL, "error", err)
		} else {
			set.Backend.Add("websocket", b)
			logger.Info("Viewer stream connected", "url", wc.URL)
		}
	}

	if ic := config.GetInfluxConfig(); ic.Enabled {
		backup := filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("influx_backup_%s.log.gz", deps.SessionStart.Format("20060102_150405")))
		m := influx.NewManager(deps.Zerolog.With().Str("component", "influx").Logger(), ic, backup)
		if err := m.Connect(); err != nil {
			logger.Error("InfluxDB sink unavailable", "error", err)
		} else {
			set.Influx = m
			set.Backend.Add("influx", m)
		}
	}

	return set, nil
}

func createPrimaryBackend(storageCfg config.StorageConfig, deps storageDeps, set *storageSet) (storage.Backend, error) {
	logger := deps.LogManager.Logger()

	switch storageCfg.Type {
	case "postgres":
		mgr := database.NewManager(deps.Zerolog.With().Str("component", "database").Logger())
		if err := mgr.Connect(config.GetDBConfig(), storageCfg.SQLite.Path); err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if err := mgr.Setup(); err != nil {
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
		set.closers = append(set.closers, mgr.Close)
		logger.Info("Postgres storage backend initialized", "fallback", mgr.ShouldSaveLocal)
		return gormstorage.New(gormstorage.Dependencies{
			DB:            mgr.DB,
			LogManager:    deps.LogManager,
			FlushInterval: storageCfg.FlushInterval,
			SQLite:        mgr.ShouldSaveLocal,
		}), nil

	case "sqlite":
		dumpPath := storageCfg.SQLite.DumpPath
		if dumpPath == "" {
			dumpPath = filepath.Join(storageCfg.Memory.OutputDir,
				fmt.Sprintf("%s_%s.db", Name, deps.SessionStart.Format("20060102_150405")))
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:          storageCfg.SQLite.Path,
			DumpPath:      dumpPath,
			DumpInterval:  storageCfg.SQLite.DumpInterval,
			FlushInterval: storageCfg.FlushInterval,
		}, deps.LogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path, "dumpPath", dumpPath)
		return backend, nil

	case "none":
		logger.Info("Recording disabled")
		return storage.Noop{}, nil

	default:
		logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil
	}
}

func logExports(logger *slog.Logger, m *storage.Multi) {
	for _, path := range m.Exported() {
		logger.Info("Session recording written", "path", path)
	}
}
