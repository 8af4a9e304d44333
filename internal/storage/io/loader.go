package io

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/devagent/internal/model"
)

// ServiceConfigRepository loads service configuration records dropped as JSON
// or YAML files.
type ServiceConfigRepository struct {
	fs fs.FS
}

// NewServiceConfigRepository creates a new service config record repository.
func NewServiceConfigRepository(filesystem fs.FS) *ServiceConfigRepository {
	return &ServiceConfigRepository{fs: filesystem}
}

// IsRecordFile returns true if the file name has a supported record extension.
func IsRecordFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// GetConfig loads a service configuration record and returns the domain model.
// Only the fields required to enqueue work are validated here (name and type).
func (r *ServiceConfigRepository) GetConfig(ctx context.Context, path string) (model.ServiceConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.ServiceConfig{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.ServiceConfig{}, ctx.Err()
	}

	var cfg ServiceConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return model.ServiceConfig{}, fmt.Errorf("parsing JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return model.ServiceConfig{}, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		return model.ServiceConfig{}, fmt.Errorf("unsupported config file %q: %w", path, model.ErrNotValid)
	}

	if err := cfg.validate(); err != nil {
		return model.ServiceConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg.toModel(), nil
}

// ServiceConfig represents the file structure of a service configuration record.
type ServiceConfig struct {
	Name         string          `json:"name" yaml:"name"`
	Type         string          `json:"type" yaml:"type"`
	Requirements map[string]any  `json:"requirements" yaml:"requirements"`
	Features     []FeatureConfig `json:"features" yaml:"features"`
	CreatedAt    *time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    *time.Time      `json:"updatedAt" yaml:"updatedAt"`
}

// FeatureConfig represents the file structure of a service feature.
type FeatureConfig struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Priority    string     `json:"priority" yaml:"priority"`
	Status      string     `json:"status" yaml:"status"`
	CreatedAt   *time.Time `json:"createdAt" yaml:"createdAt"`
}

func (c ServiceConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required: %w", model.ErrNotValid)
	}
	if c.Type == "" {
		return fmt.Errorf("type is required: %w", model.ErrNotValid)
	}
	if err := model.ValidateServiceName(c.Name); err != nil {
		return err
	}
	return nil
}

func (c ServiceConfig) toModel() model.ServiceConfig {
	cfg := model.ServiceConfig{
		Name:         c.Name,
		Type:         model.ServiceType(c.Type),
		Requirements: model.Requirements(c.Requirements),
	}
	if c.CreatedAt != nil {
		cfg.CreatedAt = c.CreatedAt.UTC()
	}
	if c.UpdatedAt != nil {
		cfg.UpdatedAt = c.UpdatedAt.UTC()
	}

	for _, f := range c.Features {
		feature := model.Feature{
			Name:        f.Name,
			Description: f.Description,
			Priority:    model.FeaturePriority(f.Priority),
			Status:      model.FeatureStatus(f.Status),
		}
		if feature.Priority == "" {
			feature.Priority = model.FeaturePriorityMedium
		}
		if feature.Status == "" {
			feature.Status = model.FeatureStatusPending
		}
		if f.CreatedAt != nil {
			feature.CreatedAt = f.CreatedAt.UTC()
		}
		cfg.Features = append(cfg.Features, feature)
	}

	return cfg
}
