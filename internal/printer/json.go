package printer

import (
	"encoding/json"
	"io"

	"github.com/slok/devagent/internal/model"
)

// JSONPrinter prints agent information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintServiceList prints service configurations in JSON format, never null.
func (j *JSONPrinter) PrintServiceList(services []model.ServiceConfig) error {
	if services == nil {
		services = []model.ServiceConfig{}
	}
	return j.encode(services)
}

// PrintService prints a service configuration in JSON format.
func (j *JSONPrinter) PrintService(service model.ServiceConfig) error {
	return j.encode(service)
}

// PrintTaskList prints the queued tasks in JSON format, never null.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	return j.encode(tasks)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
