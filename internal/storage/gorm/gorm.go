// Package gormstorage implements storage.Backend on top of any GORM dialect.
// The SQLite and Postgres backends embed it and only add connection handling.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sortie/replay/internal/model"
	"github.com/sortie/replay/internal/model/convert"
	"github.com/sortie/replay/internal/storage"
	"github.com/sortie/replay/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Backend with one row per attempt.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend has no database")
	}

	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	b.deps.Logger.Debug("Database setup complete")
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

// SaveAttempt inserts the attempt or replaces the row with the same id.
func (b *Backend) SaveAttempt(ctx context.Context, a *storage.Attempt) error {
	if a == nil || a.Log == nil {
		return fmt.Errorf("attempt has no mission log")
	}
	row, err := convert.AttemptToModel(a)
	if err != nil {
		return err
	}

	err = b.deps.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save attempt %s: %w", row.ID, err)
	}

	b.deps.Logger.Debug("Saved attempt",
		"attemptId", row.ID,
		"missionId", row.MissionID,
		"events", row.EventCount)
	return nil
}

// LoadAttempt reads one attempt by id.
func (b *Backend) LoadAttempt(ctx context.Context, id string) (*storage.Attempt, error) {
	var row model.Attempt
	err := b.deps.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("attempt %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load attempt %s: %w", id, err)
	}
	return convert.ModelToAttempt(row, b.deps.Logger)
}

// ListAttempts returns summaries oldest first. An empty missionID lists all.
func (b *Backend) ListAttempts(ctx context.Context, missionID string) ([]core.FlightSummary, error) {
	var rows []model.Attempt
	q := b.deps.DB.WithContext(ctx).
		Select("id", "mission_id", "started_at", "duration_ms", "outcome", "score")
	if missionID != "" {
		q = q.Where("mission_id = ?", missionID)
	}
	if err := q.Order("started_at asc").Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	out := make([]core.FlightSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.SummaryFromModel(r))
	}
	return out, nil
}

// Best returns the fastest completed attempt of a mission.
func (b *Backend) Best(ctx context.Context, missionID string) (*storage.Attempt, error) {
	var row model.Attempt
	err := b.deps.DB.WithContext(ctx).
		Where("mission_id = ? AND outcome = ?", missionID, string(core.OutcomeCompleted)).
		Order("duration_ms asc").Order("started_at asc").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("best attempt of %s: %w", missionID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query best attempt: %w", err)
	}
	return convert.ModelToAttempt(row, b.deps.Logger)
}
