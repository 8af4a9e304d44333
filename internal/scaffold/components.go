package scaffold

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/slok/devagent/internal/conventions"
	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
)

var componentNameRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// GenerateComponents writes a stub for every component of an already scaffolded
// service. Frontends get a React component, backends a controller and fullstack
// services both.
func (s *Scaffolder) GenerateComponents(ctx context.Context, name string, t model.ServiceType, components []string) error {
	if err := model.ValidateServiceName(name); err != nil {
		return err
	}
	for _, c := range components {
		if !componentNameRegexp.MatchString(c) {
			return fmt.Errorf("invalid component name %q: %w", c, model.ErrNotValid)
		}
	}

	dir := s.ServiceDir(name)
	var targets []componentTarget
	switch t {
	case model.ServiceTypeFrontend:
		targets = []componentTarget{frontendComponent(dir)}
	case model.ServiceTypeBackend:
		targets = []componentTarget{backendComponent(dir)}
	case model.ServiceTypeFullstack:
		targets = []componentTarget{
			frontendComponent(filepath.Join(dir, conventions.FrontendDir)),
			backendComponent(filepath.Join(dir, conventions.BackendDir)),
		}
	default:
		return fmt.Errorf("unknown service type %q: %w", t, model.ErrNotValid)
	}

	written := 0
	for _, c := range components {
		for _, target := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}

			data := s.data(name, name, nil)
			data.Component = upperFirst(c)
			ok, err := s.writeTemplate(target.path(c), target.template, data)
			if err != nil {
				return fmt.Errorf("could not generate component %s: %w", c, err)
			}
			if ok {
				written++
			}
		}
	}

	s.logger.WithCtxValues(ctx).WithValues(log.Kv{"service": name}).Infof("Generated %d component files", written)
	return nil
}

type componentTarget struct {
	template string
	path     func(component string) string
}

func frontendComponent(dir string) componentTarget {
	return componentTarget{
		template: "component/frontend.js.tmpl",
		path: func(c string) string {
			return filepath.Join(dir, "src", "components", upperFirst(c)+".js")
		},
	}
}

func backendComponent(dir string) componentTarget {
	return componentTarget{
		template: "component/backend.js.tmpl",
		path: func(c string) string {
			return filepath.Join(dir, "controllers", lowerFirst(c)+"Controller.js")
		},
	}
}

// WriteFeature writes the notes of a requested feature inside the service.
func (s *Scaffolder) WriteFeature(ctx context.Context, name string, f model.Feature) error {
	if err := model.ValidateServiceName(name); err != nil {
		return err
	}

	slug := Slug(f.Name)
	if slug == "" {
		return fmt.Errorf("invalid feature name %q: %w", f.Name, model.ErrNotValid)
	}

	data := s.data(name, name, nil)
	data.Feature = f
	path := filepath.Join(s.ServiceDir(name), conventions.FeaturesDir, slug+".md")
	ok, err := s.writeTemplate(path, "feature.md.tmpl", data)
	if err != nil {
		return fmt.Errorf("could not write feature %s: %w", f.Name, err)
	}

	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"service": name, "feature": f.Name})
	if ok {
		logger.Infof("Feature notes written to %s", path)
	} else {
		logger.Debugf("Feature notes already present at %s", path)
	}

	return nil
}

// Slug returns a file name friendly version of s: lowercase ASCII letters and
// digits separated by single dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
