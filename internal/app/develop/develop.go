package develop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/devagent/internal/hub"
	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/storage"
)

// Scaffolder writes the service skeletons on disk.
type Scaffolder interface {
	ServiceExists(name string) (bool, error)
	Setup(ctx context.Context, name string, t model.ServiceType, req model.Requirements) error
	GenerateComponents(ctx context.Context, name string, t model.ServiceType, components []string) error
	WriteFeature(ctx context.Context, name string, f model.Feature) error
}

// Registrar announces services to the Integration Hub.
type Registrar interface {
	Register(ctx context.Context, reg hub.Registration)
}

// HandlerConfig is the configuration for the development task handler.
type HandlerConfig struct {
	Repository storage.ServiceRepository
	Scaffolder Scaffolder
	Registrar  Registrar
	Logger     log.Logger
	Clock      func() time.Time
}

func (c *HandlerConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Scaffolder == nil {
		return fmt.Errorf("scaffolder is required")
	}

	if c.Registrar == nil {
		return fmt.Errorf("registrar is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "develop.Handler"})

	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}

	return nil
}

// Handler executes the development tasks of the queue.
type Handler struct {
	repo      storage.ServiceRepository
	scaffold  Scaffolder
	registrar Registrar
	logger    log.Logger
	now       func() time.Time
}

// NewHandler returns a new development task handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Handler{
		repo:      cfg.Repository,
		scaffold:  cfg.Scaffolder,
		registrar: cfg.Registrar,
		logger:    cfg.Logger,
		now:       cfg.Clock,
	}, nil
}

// Handle dispatches a task by its type.
func (h *Handler) Handle(ctx context.Context, task model.Task) error {
	if err := model.ValidateServiceName(task.ServiceName); err != nil {
		return err
	}

	switch task.Type {
	case model.TaskTypeCreateService:
		return h.createService(ctx, task)
	case model.TaskTypeUpdateService:
		return h.updateService(ctx, task)
	case model.TaskTypeAddFeature:
		return h.addFeature(ctx, task)
	case model.TaskTypeGenerateCode:
		return h.generateCode(ctx, task)
	case model.TaskTypeIntegrateService:
		return h.integrateService(ctx, task)
	}

	return fmt.Errorf("unknown task type %q: %w", task.Type, model.ErrNotValid)
}

func (h *Handler) createService(ctx context.Context, task model.Task) error {
	logger := h.logger.WithCtxValues(ctx).WithValues(log.Kv{"service": task.ServiceName})

	t, err := h.serviceType(ctx, task)
	if err != nil {
		return err
	}
	logger.Infof("Creating new service: %s (%s)", task.ServiceName, t)

	// The stored configuration is only created when missing, it is the source
	// of truth once it exists.
	_, err = h.repo.GetService(ctx, task.ServiceName)
	switch {
	case errors.Is(err, model.ErrNotFound):
		now := h.now()
		err := h.repo.CreateService(ctx, model.ServiceConfig{
			Name:         task.ServiceName,
			Type:         t,
			Requirements: task.Requirements,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil && !errors.Is(err, model.ErrAlreadyExists) {
			return fmt.Errorf("could not store service configuration: %w", err)
		}
	case err != nil:
		return fmt.Errorf("could not get service configuration: %w", err)
	}

	if err := h.scaffold.Setup(ctx, task.ServiceName, t, task.Requirements); err != nil {
		return err
	}

	h.registrar.Register(ctx, hub.Registration{Name: task.ServiceName, Type: t})

	return nil
}

func (h *Handler) updateService(ctx context.Context, task model.Task) error {
	t, err := h.serviceType(ctx, task)
	if err != nil {
		return err
	}

	h.logger.WithCtxValues(ctx).Infof("Updating service: %s (%s)", task.ServiceName, t)

	return h.scaffold.Setup(ctx, task.ServiceName, t, task.Requirements)
}

func (h *Handler) addFeature(ctx context.Context, task model.Task) error {
	logger := h.logger.WithCtxValues(ctx).WithValues(log.Kv{"service": task.ServiceName})

	if err := h.requireService(task.ServiceName); err != nil {
		return err
	}

	// A single requested feature.
	if name := task.Requirements.String("featureName"); name != "" {
		f, err := model.NewFeature(name, task.Requirements.String("description"), model.FeaturePriority(task.Requirements.String("priority")), h.now())
		if err != nil {
			return err
		}
		logger.Infof("Adding feature %q to service: %s", f.Name, task.ServiceName)
		return h.scaffold.WriteFeature(ctx, task.ServiceName, f)
	}

	// Every pending feature of the service.
	s, err := h.repo.GetService(ctx, task.ServiceName)
	if err != nil {
		return fmt.Errorf("could not get service configuration: %w", err)
	}

	added := 0
	for _, f := range s.Features {
		if f.Status != model.FeatureStatusPending {
			continue
		}
		if err := h.scaffold.WriteFeature(ctx, task.ServiceName, f); err != nil {
			return err
		}
		added++
	}
	logger.Infof("Added %d pending features to service: %s", added, task.ServiceName)

	return nil
}

func (h *Handler) generateCode(ctx context.Context, task model.Task) error {
	logger := h.logger.WithCtxValues(ctx).WithValues(log.Kv{"service": task.ServiceName})

	if err := h.requireService(task.ServiceName); err != nil {
		return err
	}

	components := task.Requirements.Strings("components")
	if len(components) == 0 {
		logger.Infof("No components requested for service: %s", task.ServiceName)
		return nil
	}

	t, err := h.serviceType(ctx, task)
	if err != nil {
		return err
	}

	logger.Infof("Generating %d components for service: %s", len(components), task.ServiceName)
	return h.scaffold.GenerateComponents(ctx, task.ServiceName, t, components)
}

func (h *Handler) integrateService(ctx context.Context, task model.Task) error {
	t, err := h.serviceType(ctx, task)
	if err != nil {
		return err
	}

	h.logger.WithCtxValues(ctx).Infof("Integrating service: %s", task.ServiceName)
	h.registrar.Register(ctx, hub.Registration{Name: task.ServiceName, Type: t})

	return nil
}

// serviceType resolves the service type from the task, falling back to the
// stored configuration.
func (h *Handler) serviceType(ctx context.Context, task model.Task) (model.ServiceType, error) {
	t := task.ServiceType
	if t == "" {
		s, err := h.repo.GetService(ctx, task.ServiceName)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return "", fmt.Errorf("service type is required for unknown service %s: %w", task.ServiceName, model.ErrNotValid)
			}
			return "", fmt.Errorf("could not get service configuration: %w", err)
		}
		t = s.Type
	}

	if !t.Valid() {
		return "", fmt.Errorf("unknown service type %q: %w", t, model.ErrNotValid)
	}

	return t, nil
}

func (h *Handler) requireService(name string) error {
	exists, err := h.scaffold.ServiceExists(name)
	if err != nil {
		return fmt.Errorf("could not check service directory: %w", err)
	}
	if !exists {
		return fmt.Errorf("service %s has not been created: %w", name, model.ErrNotFound)
	}
	return nil
}
