package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.ServiceRepository and
// storage.TaskQueueRepository.
type Repository struct {
	services map[string]model.ServiceConfig
	queue    []model.Task
	saves    int
	mu       sync.RWMutex
	logger   log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		services: make(map[string]model.ServiceConfig),
		logger:   cfg.Logger,
	}, nil
}

// CreateService creates a new service configuration in the repository.
func (r *Repository) CreateService(ctx context.Context, s model.ServiceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[s.Name]; ok {
		return fmt.Errorf("service %s: %w", s.Name, model.ErrAlreadyExists)
	}

	r.services[s.Name] = s.Copy()
	r.logger.Debugf("Created service in repository: %s", s.Name)

	return nil
}

// GetService retrieves a service configuration by name.
func (r *Repository) GetService(ctx context.Context, name string) (*model.ServiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", name, model.ErrNotFound)
	}

	// Return a copy
	sCopy := s.Copy()
	return &sCopy, nil
}

// ListServices returns all service configurations sorted by name.
func (r *Repository) ListServices(ctx context.Context) ([]model.ServiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]model.ServiceConfig, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s.Copy())
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })

	return services, nil
}

// UpdateService updates an existing service configuration.
func (r *Repository) UpdateService(ctx context.Context, s model.ServiceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[s.Name]; !ok {
		return fmt.Errorf("service %s: %w", s.Name, model.ErrNotFound)
	}

	r.services[s.Name] = s.Copy()
	r.logger.Debugf("Updated service in repository: %s", s.Name)

	return nil
}

// DeleteService deletes a service configuration.
func (r *Repository) DeleteService(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[name]; !ok {
		return fmt.Errorf("service %s: %w", name, model.ErrNotFound)
	}

	delete(r.services, name)
	r.logger.Debugf("Deleted service from repository: %s", name)

	return nil
}

// LoadQueue returns a copy of the stored queue.
func (r *Repository) LoadQueue(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]model.Task{}, r.queue...), nil
}

// SaveQueue replaces the stored queue.
func (r *Repository) SaveQueue(ctx context.Context, tasks []model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queue = append([]model.Task{}, tasks...)
	r.saves++

	return nil
}

// QueueSaves returns how many times the queue has been saved.
func (r *Repository) QueueSaves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.saves
}
