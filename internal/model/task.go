package model

import (
	"fmt"
	"time"
)

// TaskType is the kind of work a task performs.
type TaskType string

const (
	TaskTypeCreateService    TaskType = "createService"
	TaskTypeUpdateService    TaskType = "updateService"
	TaskTypeAddFeature       TaskType = "addFeature"
	TaskTypeGenerateCode     TaskType = "generateCode"
	TaskTypeIntegrateService TaskType = "integrateService"
)

// Valid returns true if the task type is one of the known task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeCreateService, TaskTypeUpdateService, TaskTypeAddFeature, TaskTypeGenerateCode, TaskTypeIntegrateService:
		return true
	}
	return false
}

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal returns true when the status can't transition anymore.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is a single unit of queued development work for a service.
type Task struct {
	ID           string       `json:"id"`
	Type         TaskType     `json:"type"`
	ServiceName  string       `json:"serviceName"`
	ServiceType  ServiceType  `json:"serviceType,omitempty"`
	Requirements Requirements `json:"requirements,omitempty"`
	Status       TaskStatus   `json:"status"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

// Validate checks the fields a producer must set before enqueueing a task.
// Unknown task or service types are accepted here and fail when the task is processed.
func (t *Task) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("task type is required: %w", ErrNotValid)
	}
	if t.ServiceName == "" {
		return fmt.Errorf("service name is required: %w", ErrNotValid)
	}
	return nil
}
