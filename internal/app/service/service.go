package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/storage"
)

// ServiceConfig is the configuration for the service configuration use cases.
type ServiceConfig struct {
	Repository storage.ServiceRepository
	Logger     log.Logger
	Clock      func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Service"})

	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}

	return nil
}

// Service manages the stored service configurations. It never enqueues tasks,
// changes reach the queue through the config watcher or explicit task requests.
type Service struct {
	repo   storage.ServiceRepository
	logger log.Logger
	now    func() time.Time

	// mu serializes the read-modify-write mutations of stored configurations.
	mu sync.Mutex
}

// NewService creates a new service configuration service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    cfg.Clock,
	}, nil
}

// CreateRequest represents the create request parameters.
type CreateRequest struct {
	Name         string
	Type         model.ServiceType
	Requirements model.Requirements
}

// Create stores a new service configuration.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.ServiceConfig, error) {
	now := s.now()
	cfg := model.ServiceConfig{
		Name:         req.Name,
		Type:         req.Type,
		Requirements: req.Requirements,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if cfg.Requirements == nil {
		cfg.Requirements = model.Requirements{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateService(ctx, cfg); err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return nil, fmt.Errorf("service %s already exists: %w", cfg.Name, model.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	s.logger.Infof("Added service configuration for %s", cfg.Name)
	return &cfg, nil
}

// Get returns a stored service configuration.
func (s *Service) Get(ctx context.Context, name string) (*model.ServiceConfig, error) {
	cfg, err := s.repo.GetService(ctx, name)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("service not found: %s: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get service: %w", err)
	}

	return cfg, nil
}

// List returns every stored service configuration sorted by name.
func (s *Service) List(ctx context.Context) ([]model.ServiceConfig, error) {
	services, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list services: %w", err)
	}
	if services == nil {
		services = []model.ServiceConfig{}
	}

	return services, nil
}

// UpdateRequest represents the update request parameters. Empty fields are kept.
type UpdateRequest struct {
	Name         string
	Type         model.ServiceType
	Requirements model.Requirements
}

// Update changes the type and requirements of a stored service configuration.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*model.ServiceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.Get(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	if req.Type != "" {
		cfg.Type = req.Type
	}
	if req.Requirements != nil {
		cfg.Requirements = req.Requirements
	}
	cfg.UpdatedAt = s.now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateService(ctx, *cfg); err != nil {
		return nil, fmt.Errorf("could not update service: %w", err)
	}

	s.logger.Infof("Updated service configuration for %s", cfg.Name)
	return cfg, nil
}

// Delete removes a stored service configuration. Scaffolded files are kept.
func (s *Service) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteService(ctx, name); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("service not found: %s: %w", name, model.ErrNotFound)
		}
		return fmt.Errorf("could not delete service: %w", err)
	}

	s.logger.Infof("Deleted service configuration for %s", name)
	return nil
}

// AddFeatureRequest represents the add feature request parameters.
type AddFeatureRequest struct {
	Name        string
	FeatureName string
	Description string
	Priority    model.FeaturePriority
}

// AddFeature appends a pending feature to a stored service configuration.
// Features are not deduplicated.
func (s *Service) AddFeature(ctx context.Context, req AddFeatureRequest) (*model.ServiceConfig, *model.Feature, error) {
	now := s.now()
	f, err := model.NewFeature(req.FeatureName, req.Description, req.Priority, now)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.Get(ctx, req.Name)
	if err != nil {
		return nil, nil, err
	}

	cfg.Features = append(cfg.Features, f)
	cfg.UpdatedAt = now

	if err := s.repo.UpdateService(ctx, *cfg); err != nil {
		return nil, nil, fmt.Errorf("could not update service: %w", err)
	}

	s.logger.Infof("Added feature %q to service %s", f.Name, cfg.Name)
	return cfg, &f, nil
}
