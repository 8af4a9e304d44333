// Package api is the HTTP façade of the agent. It manages the stored service
// configurations, accepts tasks for the queue and reports the agent status.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/slok/devagent/internal/app/service"
	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/queue"
)

// ServiceManager manages the stored service configurations.
type ServiceManager interface {
	Create(ctx context.Context, req service.CreateRequest) (*model.ServiceConfig, error)
	Get(ctx context.Context, name string) (*model.ServiceConfig, error)
	List(ctx context.Context) ([]model.ServiceConfig, error)
	Update(ctx context.Context, req service.UpdateRequest) (*model.ServiceConfig, error)
	Delete(ctx context.Context, name string) error
	AddFeature(ctx context.Context, req service.AddFeatureRequest) (*model.ServiceConfig, *model.Feature, error)
}

var _ ServiceManager = &service.Service{}

// TaskQueue is the task queue seen from the façade.
type TaskQueue interface {
	AddTask(ctx context.Context, task model.Task) (string, error)
	Tasks() []model.Task
	Status() queue.Status
}

var _ TaskQueue = &queue.Queue{}

// HandlerConfig is the configuration for the API handler.
type HandlerConfig struct {
	Services ServiceManager
	Queue    TaskQueue
	// AllowedOrigins for CORS, defaults to any origin.
	AllowedOrigins []string
	Logger         log.Logger
	Clock          func() time.Time
}

func (c *HandlerConfig) defaults() error {
	if c.Services == nil {
		return fmt.Errorf("service manager is required")
	}

	if c.Queue == nil {
		return fmt.Errorf("queue is required")
	}

	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})

	if c.Clock == nil {
		c.Clock = time.Now
	}

	return nil
}

type handler struct {
	services  ServiceManager
	queue     TaskQueue
	logger    log.Logger
	now       func() time.Time
	startedAt time.Time
}

// NewHandler returns the HTTP handler with all the API routes.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{
		services:  cfg.Services,
		queue:     cfg.Queue,
		logger:    cfg.Logger,
		now:       cfg.Clock,
		startedAt: cfg.Clock(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(h.recoverPanics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.listServices)
			r.Post("/", h.createService)
			r.Get("/{name}", h.getService)
			r.Put("/{name}", h.updateService)
			r.Delete("/{name}", h.deleteService)
			r.Post("/{name}/features", h.addFeature)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.listTasks)
			r.Post("/", h.createTask)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r, nil
}
