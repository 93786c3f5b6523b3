// Package sqlitestorage implements the storage.Backend interface using SQLite,
// either a database file or an in-memory database with periodic disk dumps
// via VACUUM INTO. It wraps the GORM backend via composition; the only
// SQLite-specific concerns are creating the database, migrating without
// PostGIS, and the dump loop.
package sqlitestorage

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/roadops/operator-console/internal/database"
	"github.com/roadops/operator-console/internal/logging"
	gormstorage "github.com/roadops/operator-console/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// Path of the database file. Empty keeps the database in memory.
	Path          string
	DumpInterval  time.Duration
	DumpPath      string // Path for periodic VACUUM INTO dumps
	FlushInterval time.Duration
	// MemoryName names the shared in-memory database. Defaults to "console".
	MemoryName string
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *logging.SlogManager
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new SQLite storage backend.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	var (
		db  *gorm.DB
		err error
	)
	if cfg.Path != "" {
		db, err = database.OpenSQLite(cfg.Path)
	} else {
		name := cfg.MemoryName
		if name == "" {
			name = "console"
		}
		db, err = database.OpenSQLiteMemory(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite DB: %w", err)
	}
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		LogManager:    logManager,
		FlushInterval: cfg.FlushInterval,
		SQLite:        true,
	})

	return &Backend{
		Backend: gormBackend,
		db:      db,
		cfg:     cfg,
		log:     logManager,
	}, nil
}

// DB returns the underlying database.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init initializes the embedded GORM backend and starts the dump goroutine
// for in-memory databases.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.Path == "" && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.stopChan = make(chan struct{})
		b.done = make(chan struct{})
		go b.dumpLoop()
	}

	return nil
}

// EndSession flushes, stamps the session and writes a final dump.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	return b.Dump()
}

// Dump writes the in-memory database to DumpPath. It is a no-op for file
// databases or when no dump path is configured.
func (b *Backend) Dump() error {
	if b.cfg.Path != "" || b.cfg.DumpPath == "" {
		return nil
	}
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		b.log.WriteLog("sqlite:dump", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
		return err
	}
	b.log.WriteLog("sqlite:dump", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
	return nil
}

// ExportedFilePath returns the dump path for in-memory databases, or the
// database file itself.
func (b *Backend) ExportedFilePath() string {
	if b.cfg.Path != "" {
		return b.cfg.Path
	}
	return b.cfg.DumpPath
}

// Close stops the dump goroutine and closes the embedded GORM backend.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	err := b.Backend.Close()
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		sqlDB.Close()
	}
	return err
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
			_ = b.Dump()
		}
	}
}
