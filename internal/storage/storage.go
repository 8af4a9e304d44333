package storage

import (
	"context"

	"github.com/slok/devagent/internal/model"
)

// ServiceRepository is the interface for service configuration persistence.
// Every service is stored as a single record keyed by name.
type ServiceRepository interface {
	CreateService(ctx context.Context, s model.ServiceConfig) error
	GetService(ctx context.Context, name string) (*model.ServiceConfig, error)
	ListServices(ctx context.Context) ([]model.ServiceConfig, error)
	UpdateService(ctx context.Context, s model.ServiceConfig) error
	DeleteService(ctx context.Context, name string) error
}

// TaskQueueRepository persists the whole ordered task queue as a single record.
type TaskQueueRepository interface {
	// LoadQueue returns the persisted queue in order, empty if nothing was persisted yet.
	LoadQueue(ctx context.Context) ([]model.Task, error)
	// SaveQueue replaces the persisted queue with tasks.
	SaveQueue(ctx context.Context, tasks []model.Task) error
}
