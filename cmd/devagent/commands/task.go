package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// TaskListCommand lists the persisted task queue.
type TaskListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewTaskListCommand returns the task list command.
func NewTaskListCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskListCommand {
	c := &TaskListCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("list", "List the queued tasks.")
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c TaskListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskListCommand) Run(ctx context.Context) error {
	repos, err := newRepositories(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer repos.close()

	tasks, err := repos.queue.LoadQueue(ctx)
	if err != nil {
		return fmt.Errorf("could not load task queue: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}
