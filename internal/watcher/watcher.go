package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	storageio "github.com/slok/devagent/internal/storage/io"
	fileutil "github.com/slok/devagent/internal/utils/file"
)

// Enqueuer receives the tasks derived from the config records.
type Enqueuer interface {
	AddTask(ctx context.Context, task model.Task) (string, error)
}

// ServiceChecker knows if a service has already been created on disk.
type ServiceChecker interface {
	ServiceExists(name string) (bool, error)
}

// Config is the configuration for the config watcher.
type Config struct {
	// Dir is the directory with the service config records.
	Dir      string
	Enqueuer Enqueuer
	Services ServiceChecker
	// DisableInitialScan skips handling the records already present at start.
	DisableInitialScan bool
	Logger             log.Logger
}

func (c *Config) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}

	if c.Enqueuer == nil {
		return fmt.Errorf("enqueuer is required")
	}

	if c.Services == nil {
		return fmt.Errorf("service checker is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "watcher.Watcher"})

	return nil
}

// Watcher turns created or changed service config records into queue tasks.
// There is no coalescing, every event on a record enqueues one task.
type Watcher struct {
	dir         string
	loader      *storageio.ServiceConfigRepository
	enqueuer    Enqueuer
	services    ServiceChecker
	initialScan bool
	logger      log.Logger
}

// New returns a new config watcher.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Watcher{
		dir:         cfg.Dir,
		loader:      storageio.NewServiceConfigRepository(os.DirFS(cfg.Dir)),
		enqueuer:    cfg.Enqueuer,
		services:    cfg.Services,
		initialScan: !cfg.DisableInitialScan,
		logger:      cfg.Logger,
	}, nil
}

// Run watches the records directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", w.dir, err)
	}
	w.logger.Infof("Watching service config records at %s", w.dir)

	if w.initialScan {
		if err := w.scan(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("Config watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				w.handle(ctx, event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("fsnotify error: %s", err)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("could not read config directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.handle(ctx, filepath.Join(w.dir, e.Name()))
	}

	return nil
}

// handle enqueues the task for a single record. Bad records are logged and dropped.
func (w *Watcher) handle(ctx context.Context, path string) {
	name := filepath.Base(path)
	if fileutil.IsTemp(name) || !storageio.IsRecordFile(name) {
		return
	}

	logger := w.logger.WithValues(log.Kv{"file": name})
	logger.Infof("Config file changed: %s", name)

	cfg, err := w.loader.GetConfig(ctx, name)
	if err != nil {
		logger.Warningf("Invalid config file %s: %s", name, err)
		return
	}

	exists, err := w.services.ServiceExists(cfg.Name)
	if err != nil {
		logger.Errorf("Could not check service %s: %s", cfg.Name, err)
		return
	}

	taskType := model.TaskTypeCreateService
	if exists {
		taskType = model.TaskTypeUpdateService
	}

	_, err = w.enqueuer.AddTask(ctx, model.Task{
		Type:         taskType,
		ServiceName:  cfg.Name,
		ServiceType:  cfg.Type,
		Requirements: cfg.Requirements,
	})
	if err != nil {
		logger.Errorf("Could not enqueue %s task for %s: %s", taskType, cfg.Name, err)
	}
}
