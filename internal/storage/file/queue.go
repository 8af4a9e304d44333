package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	fileutil "github.com/slok/devagent/internal/utils/file"
)

// QueueRepositoryConfig is the configuration for the file task queue repository.
type QueueRepositoryConfig struct {
	// Path is the file holding the whole ordered queue as a JSON list.
	Path   string
	Logger log.Logger
}

func (c *QueueRepositoryConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.FileQueue"})
	return nil
}

// QueueRepository is a file implementation of storage.TaskQueueRepository.
type QueueRepository struct {
	path   string
	mu     sync.Mutex
	logger log.Logger
}

// NewQueueRepository creates a new file task queue repository.
func NewQueueRepository(cfg QueueRepositoryConfig) (*QueueRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &QueueRepository{
		path:   cfg.Path,
		logger: cfg.Logger,
	}, nil
}

// LoadQueue reads the persisted queue, a missing file is an empty queue.
func (r *QueueRepository) LoadQueue(ctx context.Context) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Task{}, nil
		}
		return nil, fmt.Errorf("could not read task queue: %w", err)
	}

	tasks := []model.Task{}
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("could not decode task queue: %w", err)
	}

	r.logger.Debugf("Loaded %d tasks from %s", len(tasks), r.path)
	return tasks, nil
}

// SaveQueue rewrites the whole queue file.
func (r *QueueRepository) SaveQueue(ctx context.Context, tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal task queue: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fileutil.AtomicWrite(r.path, data); err != nil {
		return fmt.Errorf("could not write task queue: %w", err)
	}

	return nil
}
