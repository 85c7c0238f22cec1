// Package sqlitestorage implements the storage.Backend interface on SQLite.
// It wraps the GORM backend via composition. Without a dump interval the
// database file is opened directly. With one, attempts live in an in-memory
// database that is copied to disk periodically and on Close via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sortie/replay/internal/database"
	gormstorage "github.com/sortie/replay/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path         string // database file; empty keeps everything in memory
	DumpInterval time.Duration
}

func (c Config) inMemory() bool {
	return c.Path == "" || c.DumpInterval > 0
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New creates a new SQLite storage backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := cfg.Path
	if cfg.inMemory() {
		dsn = ""
	}
	db, err := database.OpenSqlite(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger}),
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.Path != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the
// embedded GORM backend.
func (b *Backend) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stopChan)
		b.wg.Wait()

		if b.cfg.Path != "" && b.cfg.DumpInterval > 0 {
			if dumpErr := b.Dump(); dumpErr != nil {
				err = dumpErr
			}
		}
		if closeErr := b.Backend.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}

// Dump copies the in-memory database to the configured path.
func (b *Backend) Dump() error {
	if !b.cfg.inMemory() {
		return nil
	}
	return database.DumpMemoryDBToDisk(b.db, b.cfg.Path)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "path", b.cfg.Path, "error", err)
			} else {
				b.log.Debug("Dumped to disk", "path", b.cfg.Path, "took", time.Since(start))
			}
		}
	}
}
