package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	fileutil "github.com/slok/devagent/internal/utils/file"
)

const recordExt = ".json"

// ServiceRepositoryConfig is the configuration for the file service repository.
type ServiceRepositoryConfig struct {
	// Dir is the directory where every service record is stored as <name>.json.
	Dir    string
	Logger log.Logger
}

func (c *ServiceRepositoryConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.FileService"})
	return nil
}

// ServiceRepository is a file implementation of storage.ServiceRepository.
// Records are rewritten wholesale on every mutation.
type ServiceRepository struct {
	dir    string
	mu     sync.Mutex
	logger log.Logger
}

// NewServiceRepository creates a new file service repository.
func NewServiceRepository(cfg ServiceRepositoryConfig) (*ServiceRepository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create service config directory: %w", err)
	}

	return &ServiceRepository{
		dir:    cfg.Dir,
		logger: cfg.Logger,
	}, nil
}

// Dir returns the directory where the records are stored.
func (r *ServiceRepository) Dir() string { return r.dir }

// CreateService creates a new service record.
func (r *ServiceRepository) CreateService(ctx context.Context, s model.ServiceConfig) error {
	if err := model.ValidateServiceName(s.Name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := fileutil.Exists(r.path(s.Name))
	if err != nil {
		return fmt.Errorf("could not check service record: %w", err)
	}
	if exists {
		return fmt.Errorf("service %s: %w", s.Name, model.ErrAlreadyExists)
	}

	if err := r.write(s); err != nil {
		return err
	}

	r.logger.Debugf("Created service in repository: %s", s.Name)
	return nil
}

// GetService retrieves a service record by name.
func (r *ServiceRepository) GetService(ctx context.Context, name string) (*model.ServiceConfig, error) {
	if err := model.ValidateServiceName(name); err != nil {
		return nil, fmt.Errorf("service %s: %w", name, model.ErrNotFound)
	}

	s, err := r.read(r.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("service %s: %w", name, model.ErrNotFound)
		}
		return nil, err
	}

	return s, nil
}

// ListServices returns all the service records sorted by name.
func (r *ServiceRepository) ListServices(ctx context.Context) ([]model.ServiceConfig, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("could not read service config directory: %w", err)
	}

	services := []model.ServiceConfig{}
	for _, e := range entries {
		if e.IsDir() || fileutil.IsTemp(e.Name()) || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}

		s, err := r.read(filepath.Join(r.dir, e.Name()))
		if err != nil {
			// A record can be removed between the listing and the read.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		services = append(services, *s)
	}

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })

	return services, nil
}

// UpdateService replaces an existing service record.
func (r *ServiceRepository) UpdateService(ctx context.Context, s model.ServiceConfig) error {
	if err := model.ValidateServiceName(s.Name); err != nil {
		return fmt.Errorf("service %s: %w", s.Name, model.ErrNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := fileutil.Exists(r.path(s.Name))
	if err != nil {
		return fmt.Errorf("could not check service record: %w", err)
	}
	if !exists {
		return fmt.Errorf("service %s: %w", s.Name, model.ErrNotFound)
	}

	if err := r.write(s); err != nil {
		return err
	}

	r.logger.Debugf("Updated service in repository: %s", s.Name)
	return nil
}

// DeleteService removes a service record.
func (r *ServiceRepository) DeleteService(ctx context.Context, name string) error {
	if err := model.ValidateServiceName(name); err != nil {
		return fmt.Errorf("service %s: %w", name, model.ErrNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("service %s: %w", name, model.ErrNotFound)
		}
		return fmt.Errorf("could not delete service record: %w", err)
	}

	r.logger.Debugf("Deleted service from repository: %s", name)
	return nil
}

func (r *ServiceRepository) path(name string) string {
	return filepath.Join(r.dir, name+recordExt)
}

func (r *ServiceRepository) write(s model.ServiceConfig) error {
	if s.Requirements == nil {
		s.Requirements = model.Requirements{}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal service record: %w", err)
	}

	if err := fileutil.AtomicWrite(r.path(s.Name), data); err != nil {
		return fmt.Errorf("could not write service record: %w", err)
	}

	return nil
}

func (r *ServiceRepository) read(path string) (*model.ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read service record: %w", err)
	}

	var s model.ServiceConfig
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not decode service record %s: %w", filepath.Base(path), err)
	}

	return &s, nil
}
