// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with an internal write queue and a background DB writer goroutine.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sortie/replay/internal/config"
	"github.com/sortie/replay/internal/database"
	"github.com/sortie/replay/internal/model"
	"github.com/sortie/replay/internal/model/convert"
	"github.com/sortie/replay/internal/queue"
	"github.com/sortie/replay/internal/storage"
	gormstorage "github.com/sortie/replay/internal/storage/gorm"
	"github.com/sortie/replay/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultWriteInterval is how often the writer drains the queue.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	// DB is used as is when set. Otherwise Init connects with Config.
	DB            *gorm.DB
	Config        config.DBConfig
	Logger        *slog.Logger
	WriteInterval time.Duration
}

// Backend implements storage.Backend with queued writes and direct reads.
type Backend struct {
	deps    Dependencies
	reader  *gormstorage.Backend
	pending *queue.Queue[string, model.Attempt]

	// writeMu serializes queue drains between the writer and Flush.
	writeMu  sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{
		deps:    deps,
		pending: queue.New(func(a model.Attempt) string { return a.ID }),
	}
}

// Init connects if needed, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.deps.DB = db
	}

	b.reader = gormstorage.New(gormstorage.Dependencies{DB: b.deps.DB, Logger: b.deps.Logger})
	if err := b.reader.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writer()
	return nil
}

// Close stops the DB writer goroutine and flushes what is left.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	b.wg.Wait()
	b.stopChan = nil

	err := b.Flush(context.Background())
	if closeErr := b.reader.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// SaveAttempt converts the attempt and pushes it to the write queue.
func (b *Backend) SaveAttempt(_ context.Context, a *storage.Attempt) error {
	if a == nil || a.Log == nil {
		return fmt.Errorf("attempt has no mission log")
	}
	row, err := convert.AttemptToModel(a)
	if err != nil {
		return err
	}
	b.pending.Push(row)
	return nil
}

// Pending returns the number of attempts not yet written.
func (b *Backend) Pending() int {
	return b.pending.Len()
}

// LoadAttempt flushes pending writes and reads one attempt.
func (b *Backend) LoadAttempt(ctx context.Context, id string) (*storage.Attempt, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.reader.LoadAttempt(ctx, id)
}

// ListAttempts flushes pending writes and lists summaries oldest first.
func (b *Backend) ListAttempts(ctx context.Context, missionID string) ([]core.FlightSummary, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.reader.ListAttempts(ctx, missionID)
}

// Best flushes pending writes and returns the fastest completed attempt.
func (b *Backend) Best(ctx context.Context, missionID string) (*storage.Attempt, error) {
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}
	return b.reader.Best(ctx, missionID)
}

// Flush writes every pending attempt now.
func (b *Backend) Flush(ctx context.Context) error {
	if b.reader == nil {
		return fmt.Errorf("postgres backend not initialized")
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return writeQueue(b.deps.DB.WithContext(ctx), b.pending, b.deps.Logger)
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed items are put back in front of the queue.
func writeQueue(db *gorm.DB, q *queue.Queue[string, model.Attempt], log *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&items).Error
	})
	if err != nil {
		log.Error("Error writing attempts", "count", len(items), "error", err)
		q.Requeue(items...)
		return fmt.Errorf("failed to write %d attempts: %w", len(items), err)
	}

	log.Debug("Wrote attempts", "count", len(items))
	return nil
}

// writer periodically drains the queue into the DB.
func (b *Backend) writer() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged and retried on the next tick
			_ = b.Flush(context.Background())
		}
	}
}
