package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/devagent/internal/app/service"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/printer"
	"github.com/slok/devagent/internal/utils/kv"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newPrinter(format string, w io.Writer) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(w)
	}
	return printer.NewTablePrinter(w)
}

func newServiceApp(ctx context.Context, rootCmd *RootCommand) (*service.Service, func() error, error) {
	repos, err := newRepositories(ctx, rootCmd)
	if err != nil {
		return nil, nil, err
	}

	svc, err := service.NewService(service.ServiceConfig{
		Repository: repos.services,
		Logger:     rootCmd.Logger,
	})
	if err != nil {
		_ = repos.close()
		return nil, nil, fmt.Errorf("could not create service: %w", err)
	}

	return svc, repos.close, nil
}

// ServiceListCommand lists the stored service configurations.
type ServiceListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewServiceListCommand returns the service list command.
func NewServiceListCommand(rootCmd *RootCommand, serviceCmd *kingpin.CmdClause) *ServiceListCommand {
	c := &ServiceListCommand{rootCmd: rootCmd}

	c.Cmd = serviceCmd.Command("list", "List service configurations.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ServiceListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServiceListCommand) Run(ctx context.Context) error {
	svc, closeStorage, err := newServiceApp(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer closeStorage()

	services, err := svc.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list services: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintServiceList(services); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}

// ServiceGetCommand shows a single service configuration.
type ServiceGetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	name   string
	format string
}

// NewServiceGetCommand returns the service get command.
func NewServiceGetCommand(rootCmd *RootCommand, serviceCmd *kingpin.CmdClause) *ServiceGetCommand {
	c := &ServiceGetCommand{rootCmd: rootCmd}

	c.Cmd = serviceCmd.Command("get", "Show a service configuration.")
	c.Cmd.Arg("name", "Service name.").Required().StringVar(&c.name)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ServiceGetCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServiceGetCommand) Run(ctx context.Context) error {
	svc, closeStorage, err := newServiceApp(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer closeStorage()

	s, err := svc.Get(ctx, c.name)
	if err != nil {
		return err
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintService(*s); err != nil {
		return fmt.Errorf("could not print service: %w", err)
	}

	return nil
}

// ServiceAddCommand stores a new service configuration. With the file storage a
// running agent picks the new record up and scaffolds the service.
type ServiceAddCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	name         string
	serviceType  string
	requirements []string
}

// NewServiceAddCommand returns the service add command.
func NewServiceAddCommand(rootCmd *RootCommand, serviceCmd *kingpin.CmdClause) *ServiceAddCommand {
	c := &ServiceAddCommand{rootCmd: rootCmd}

	c.Cmd = serviceCmd.Command("add", "Add a service configuration.")
	c.Cmd.Arg("name", "Service name.").Required().StringVar(&c.name)
	c.Cmd.Flag("type", "Service type (frontend, backend, fullstack).").Short('t').Required().
		EnumVar(&c.serviceType, string(model.ServiceTypeFrontend), string(model.ServiceTypeBackend), string(model.ServiceTypeFullstack))
	c.Cmd.Flag("req", "Requirement in KEY=VALUE format, a bare KEY reads the environment. Can be repeated.").StringsVar(&c.requirements)

	return c
}

func (c ServiceAddCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServiceAddCommand) Run(ctx context.Context) error {
	req, err := kv.ParseRequirements(c.requirements)
	if err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}

	svc, closeStorage, err := newServiceApp(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer closeStorage()

	s, err := svc.Create(ctx, service.CreateRequest{
		Name:         c.name,
		Type:         model.ServiceType(c.serviceType),
		Requirements: req,
	})
	if err != nil {
		return err
	}

	return printer.NewTablePrinter(c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("Service %s (%s) added", s.Name, s.Type))
}
