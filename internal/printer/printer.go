package printer

import "github.com/slok/devagent/internal/model"

// Printer knows how to print agent information in different formats.
type Printer interface {
	PrintServiceList(services []model.ServiceConfig) error
	PrintService(service model.ServiceConfig) error
	PrintTaskList(tasks []model.Task) error
	PrintMessage(msg string) error
}

var (
	_ Printer = &TablePrinter{}
	_ Printer = &JSONPrinter{}
)
