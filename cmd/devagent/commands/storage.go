package commands

import (
	"context"
	"fmt"

	"github.com/slok/devagent/internal/conventions"
	"github.com/slok/devagent/internal/storage"
	"github.com/slok/devagent/internal/storage/file"
	"github.com/slok/devagent/internal/storage/memory"
	"github.com/slok/devagent/internal/storage/sqlite"
)

const (
	// StorageFile stores one JSON record per service plus the queue file.
	StorageFile = "file"
	// StorageSQLite stores everything in a single SQLite database.
	StorageSQLite = "sqlite"
	// StorageMemory keeps everything in memory, lost on exit.
	StorageMemory = "memory"
)

type repositories struct {
	services storage.ServiceRepository
	queue    storage.TaskQueueRepository
	// configDir is the watched record directory, empty when the backend has none.
	configDir string
	close     func() error
}

func newRepositories(ctx context.Context, rootCmd *RootCommand) (*repositories, error) {
	logger := rootCmd.Logger

	switch rootCmd.Storage {
	case StorageFile:
		dir := conventions.ServiceConfigDir(rootCmd.DataDir)
		services, err := file.NewServiceRepository(file.ServiceRepositoryConfig{Dir: dir, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create service repository: %w", err)
		}

		queue, err := file.NewQueueRepository(file.QueueRepositoryConfig{Path: conventions.QueuePath(rootCmd.DataDir), Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create queue repository: %w", err)
		}

		return &repositories{services: services, queue: queue, configDir: dir, close: func() error { return nil }}, nil

	case StorageSQLite:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: conventions.DBPath(rootCmd.DataDir), Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}

		queue, err := sqlite.NewQueueRepository(sqlite.QueueRepositoryConfig{DB: repo.DB(), Logger: logger})
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("could not create queue repository: %w", err)
		}

		return &repositories{services: repo, queue: queue, close: repo.Close}, nil

	case StorageMemory:
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}

		return &repositories{services: repo, queue: repo, close: func() error { return nil }}, nil
	}

	return nil, fmt.Errorf("unknown storage backend: %s", rootCmd.Storage)
}
