package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/slok/devagent/internal/app/develop"
	"github.com/slok/devagent/internal/app/service"
	"github.com/slok/devagent/internal/conventions"
	"github.com/slok/devagent/internal/http/api"
	"github.com/slok/devagent/internal/hub"
	"github.com/slok/devagent/internal/queue"
	"github.com/slok/devagent/internal/scaffold"
	"github.com/slok/devagent/internal/watcher"
)

// ServeCommand runs the agent: task queue consumer, config watcher and HTTP API.
type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr       string
	workspace        string
	hubURL           string
	hubTimeout       time.Duration
	noWatch          bool
	noInitialScan    bool
	corsAllowOrigins []string
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the development agent.")
	c.Cmd.Flag("listen", "Address where the HTTP API listens.").Default(":5010").StringVar(&c.listenAddr)
	c.Cmd.Flag("workspace", "Directory where services are scaffolded (defaults to the working directory).").StringVar(&c.workspace)
	c.Cmd.Flag("hub-url", "Integration Hub base URL.").Default(conventions.DefaultHubURL).StringVar(&c.hubURL)
	c.Cmd.Flag("hub-timeout", "Timeout of the Integration Hub registration calls.").Default("5s").DurationVar(&c.hubTimeout)
	c.Cmd.Flag("no-watch", "Disable the service config watcher.").BoolVar(&c.noWatch)
	c.Cmd.Flag("no-initial-scan", "Don't handle the service configs already present at start.").BoolVar(&c.noInitialScan)
	c.Cmd.Flag("cors-allow-origin", "Allowed CORS origin, can be repeated (defaults to any).").StringsVar(&c.corsAllowOrigins)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	workspace, err := c.workspaceDir()
	if err != nil {
		return err
	}

	repos, err := newRepositories(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := repos.close(); err != nil {
			logger.Errorf("Could not close storage: %s", err)
		}
	}()

	scaffolder, err := scaffold.New(scaffold.Config{
		Root:   workspace,
		HubURL: c.hubURL,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create scaffolder: %w", err)
	}

	registrar, err := hub.NewRegistrar(hub.RegistrarConfig{
		URL:     c.hubURL,
		Timeout: c.hubTimeout,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create hub registrar: %w", err)
	}

	handler, err := develop.NewHandler(develop.HandlerConfig{
		Repository: repos.services,
		Scaffolder: scaffolder,
		Registrar:  registrar,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create task handler: %w", err)
	}

	q, err := queue.New(ctx, queue.Config{
		Repository: repos.queue,
		Handler:    handler,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create task queue: %w", err)
	}

	svc, err := service.NewService(service.ServiceConfig{
		Repository: repos.services,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	apiHandler, err := api.NewHandler(api.HandlerConfig{
		Services:       svc,
		Queue:          q,
		AllowedOrigins: c.corsAllowOrigins,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create API handler: %w", err)
	}

	server, err := api.NewServer(api.ServerConfig{
		ListenAddr: c.listenAddr,
		Handler:    apiHandler,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create API server: %w", err)
	}

	var g run.Group

	// Task queue consumer.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return q.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// Service config watcher.
	switch {
	case c.noWatch:
		logger.Infof("Service config watcher disabled")
	case repos.configDir == "":
		logger.Warningf("Service config watcher needs the %q storage, %q storage doesn't have records to watch", StorageFile, c.rootCmd.Storage)
	default:
		w, err := watcher.New(watcher.Config{
			Dir:                repos.configDir,
			Enqueuer:           q,
			Services:           scaffolder,
			DisableInitialScan: c.noInitialScan,
			Logger:             logger,
		})
		if err != nil {
			return fmt.Errorf("could not create config watcher: %w", err)
		}

		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return w.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// HTTP API.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return server.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	logger.Infof("Development agent running (workspace: %s, data: %s, storage: %s)", workspace, c.rootCmd.DataDir, c.rootCmd.Storage)
	return g.Run()
}

func (c ServeCommand) workspaceDir() (string, error) {
	if c.workspace != "" {
		return filepath.Abs(c.workspace)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("could not get working directory: %w", err)
	}
	return wd, nil
}
