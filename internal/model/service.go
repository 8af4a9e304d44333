package model

import (
	"fmt"
	"regexp"
	"time"
)

// ServiceType is the kind of service scaffolded on disk.
type ServiceType string

const (
	ServiceTypeFrontend  ServiceType = "frontend"
	ServiceTypeBackend   ServiceType = "backend"
	ServiceTypeFullstack ServiceType = "fullstack"
)

// Valid returns true if the service type is a known one.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTypeFrontend, ServiceTypeBackend, ServiceTypeFullstack:
		return true
	}
	return false
}

// Requirements is the free-form requirements bag of a service or task.
// There is no schema on purpose, handlers read the keys they know about and
// ignore the rest.
type Requirements map[string]any

// Strings returns the value of key as a string slice. Non string items are ignored.
func (r Requirements) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		res := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				res = append(res, s)
			}
		}
		return res
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// String returns the value of key as a string, empty if missing or not a string.
func (r Requirements) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// FeaturePriority is the priority of a requested feature.
type FeaturePriority string

const (
	FeaturePriorityLow    FeaturePriority = "low"
	FeaturePriorityMedium FeaturePriority = "medium"
	FeaturePriorityHigh   FeaturePriority = "high"
)

// Valid returns true if the priority is a known one.
func (p FeaturePriority) Valid() bool {
	switch p {
	case FeaturePriorityLow, FeaturePriorityMedium, FeaturePriorityHigh:
		return true
	}
	return false
}

// FeatureStatus is the development status of a feature.
type FeatureStatus string

const (
	FeatureStatusPending    FeatureStatus = "pending"
	FeatureStatusInProgress FeatureStatus = "in_progress"
	FeatureStatusDone       FeatureStatus = "done"
)

// Feature is a feature requested for a service.
type Feature struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Priority    FeaturePriority `json:"priority"`
	Status      FeatureStatus   `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewFeature returns a pending feature. An empty priority defaults to medium.
func NewFeature(name, description string, priority FeaturePriority, now time.Time) (Feature, error) {
	if name == "" {
		return Feature{}, fmt.Errorf("feature name is required: %w", ErrNotValid)
	}
	if priority == "" {
		priority = FeaturePriorityMedium
	}
	if !priority.Valid() {
		return Feature{}, fmt.Errorf("unknown feature priority %q: %w", priority, ErrNotValid)
	}

	return Feature{
		Name:        name,
		Description: description,
		Priority:    priority,
		Status:      FeatureStatusPending,
		CreatedAt:   now,
	}, nil
}

// ServiceConfig is the durable description of what a service should look like.
type ServiceConfig struct {
	Name         string       `json:"name"`
	Type         ServiceType  `json:"type"`
	Requirements Requirements `json:"requirements"`
	Features     []Feature    `json:"features,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

var serviceNameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateServiceName checks that a name can be used as a single directory name.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", ErrNotValid)
	}
	if !serviceNameRegexp.MatchString(name) {
		return fmt.Errorf("invalid service name %q: %w", name, ErrNotValid)
	}
	return nil
}

// Validate validates the service configuration.
func (s *ServiceConfig) Validate() error {
	if err := ValidateServiceName(s.Name); err != nil {
		return err
	}
	if s.Type == "" {
		return fmt.Errorf("type is required: %w", ErrNotValid)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("unknown service type %q: %w", s.Type, ErrNotValid)
	}
	for _, f := range s.Features {
		if f.Name == "" {
			return fmt.Errorf("feature name is required: %w", ErrNotValid)
		}
	}
	return nil
}

// Copy returns a deep enough copy so callers can mutate features and
// requirements without touching the original.
func (s ServiceConfig) Copy() ServiceConfig {
	c := s
	if s.Requirements != nil {
		c.Requirements = make(Requirements, len(s.Requirements))
		for k, v := range s.Requirements {
			c.Requirements[k] = v
		}
	}
	if s.Features != nil {
		c.Features = append([]Feature(nil), s.Features...)
	}
	return c
}
