package printer

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/slok/devagent/internal/model"
)

// TablePrinter prints agent information in a table format.
type TablePrinter struct {
	writer io.Writer
	now    func() time.Time
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w, now: time.Now}
}

// PrintServiceList prints service configurations in a table format.
func (t *TablePrinter) PrintServiceList(services []model.ServiceConfig) error {
	if len(services) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tTYPE\tFEATURES\tUPDATED")
	for _, s := range services {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, s.Type, len(s.Features), Age(s.UpdatedAt, t.now()))
	}

	return nil
}

// PrintService prints a detailed service configuration.
func (t *TablePrinter) PrintService(service model.ServiceConfig) error {
	fmt.Fprintf(t.writer, "Name:       %s\n", service.Name)
	fmt.Fprintf(t.writer, "Type:       %s\n", service.Type)
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(service.CreatedAt))
	fmt.Fprintf(t.writer, "Updated:    %s\n", FormatTimestamp(service.UpdatedAt))

	if len(service.Requirements) > 0 {
		keys := make([]string, 0, len(service.Requirements))
		for k := range service.Requirements {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(t.writer, "Requirements:")
		for _, k := range keys {
			fmt.Fprintf(t.writer, "  %s: %v\n", k, service.Requirements[k])
		}
	}

	if len(service.Features) > 0 {
		fmt.Fprintln(t.writer, "Features:")
		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		for _, f := range service.Features {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Name, f.Priority, f.Status)
		}
		tw.Flush()
	}

	return nil
}

// PrintTaskList prints the queued tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTYPE\tSERVICE\tSTATUS\tAGE")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			task.ID,
			task.Type,
			serviceLabel(task),
			task.Status,
			Age(task.CreatedAt, t.now()),
		)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func serviceLabel(task model.Task) string {
	if task.ServiceType == "" {
		return task.ServiceName
	}
	return fmt.Sprintf("%s (%s)", task.ServiceName, task.ServiceType)
}
