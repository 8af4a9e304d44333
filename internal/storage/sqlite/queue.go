package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
)

// QueueRepositoryConfig is the configuration for the SQLite task queue repository.
type QueueRepositoryConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *QueueRepositoryConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLiteQueue"})
	return nil
}

// QueueRepository is a SQLite implementation of storage.TaskQueueRepository.
// The whole queue lives in a single row.
type QueueRepository struct {
	db     *sql.DB
	logger log.Logger
}

// NewQueueRepository creates a new SQLite task queue repository.
func NewQueueRepository(cfg QueueRepositoryConfig) (*QueueRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &QueueRepository{
		db:     cfg.DB,
		logger: cfg.Logger,
	}, nil
}

// LoadQueue returns the persisted queue, empty if nothing was saved yet.
func (r *QueueRepository) LoadQueue(ctx context.Context) ([]model.Task, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT tasks FROM task_queue WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []model.Task{}, nil
		}
		return nil, fmt.Errorf("could not query task queue: %w", err)
	}

	tasks := []model.Task{}
	if err := json.Unmarshal([]byte(data), &tasks); err != nil {
		return nil, fmt.Errorf("could not decode task queue: %w", err)
	}

	r.logger.Debugf("Loaded %d tasks", len(tasks))
	return tasks, nil
}

// SaveQueue replaces the persisted queue.
func (r *QueueRepository) SaveQueue(ctx context.Context, tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("could not marshal task queue: %w", err)
	}

	query := `
		INSERT INTO task_queue (id, tasks, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tasks = excluded.tasks, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, string(data), time.Now().UTC().UnixNano()); err != nil {
		return fmt.Errorf("could not save task queue: %w", err)
	}

	return nil
}
