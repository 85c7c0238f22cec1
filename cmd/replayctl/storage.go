package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sortie/replay/internal/config"
	"github.com/sortie/replay/internal/storage"
	filestorage "github.com/sortie/replay/internal/storage/file"
	pgstorage "github.com/sortie/replay/internal/storage/postgres"
	sqlitestorage "github.com/sortie/replay/internal/storage/sqlite"
)

// openStorage creates and initializes the configured backend.
func openStorage(logger *slog.Logger) (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg, config.GetDBConfig(), logger)
	if err != nil {
		logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		return nil, err
	}
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, dbCfg config.DBConfig, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend initialized", "host", dbCfg.Host, "database", dbCfg.Database)
		return pgstorage.New(pgstorage.Dependencies{
			Config: dbCfg,
			Logger: logger,
		}), nil

	case "sqlite":
		if storageCfg.SQLite.Path != "" {
			if err := os.MkdirAll(filepath.Dir(storageCfg.SQLite.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create SQLite dir: %w", err)
			}
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         storageCfg.SQLite.Path,
			DumpInterval: storageCfg.SQLite.DumpInterval,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "file", "":
		logger.Info("File storage backend initialized", "dir", storageCfg.File.OutputDir)
		return filestorage.New(storageCfg.File, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

func storageType() string {
	return config.GetStorageConfig().Type
}
