// Package scaffold creates the on disk skeleton of the developed services.
//
// Scaffolding is additive: directories are created if missing and files are
// only written when absent, existing files are never overwritten. Running the
// same scaffold twice leaves the tree unchanged.
package scaffold

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/slok/devagent/internal/conventions"
	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	fileutil "github.com/slok/devagent/internal/utils/file"
)

//go:embed templates
var templatesFS embed.FS

// templates are keyed by their path relative to the templates directory.
var templates = mustLoadTemplates()

func mustLoadTemplates() map[string]*template.Template {
	funcs := template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}

	tmpls := map[string]*template.Template{}
	err := fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		data, err := fs.ReadFile(templatesFS, path)
		if err != nil {
			return err
		}

		name := strings.TrimPrefix(path, "templates/")
		t, err := template.New(name).Funcs(funcs).Parse(string(data))
		if err != nil {
			return fmt.Errorf("could not parse %s: %w", name, err)
		}
		tmpls[name] = t

		return nil
	})
	if err != nil {
		panic(fmt.Errorf("could not load scaffold templates: %w", err))
	}

	return tmpls
}

type fileSpec struct {
	path     string
	template string
}

type layout struct {
	dirs  []string
	files []fileSpec
}

var (
	frontendLayout = layout{
		dirs: []string{
			"public",
			"src/components",
			"src/pages",
			"src/utils",
			"src/services",
			"src/assets",
			"src/styles",
		},
		files: []fileSpec{
			{path: "package.json", template: "frontend/package.json.tmpl"},
			{path: "next.config.js", template: "frontend/next.config.js.tmpl"},
			{path: "src/pages/index.js", template: "frontend/index.js.tmpl"},
			{path: "src/services/integrationClient.js", template: "frontend/integrationClient.js.tmpl"},
		},
	}

	backendLayout = layout{
		dirs: []string{
			"controllers",
			"models",
			"routes",
			"middlewares",
			"utils",
			"services",
			"config",
		},
		files: []fileSpec{
			{path: "package.json", template: "backend/package.json.tmpl"},
			{path: "server.js", template: "backend/server.js.tmpl"},
			{path: "services/integrationService.js", template: "backend/integrationService.js.tmpl"},
		},
	}

	fullstackLayout = layout{
		files: []fileSpec{
			{path: "package.json", template: "fullstack/package.json.tmpl"},
			{path: "index.js", template: "fullstack/index.js.tmpl"},
		},
	}
)

// Config is the configuration for the scaffolder.
type Config struct {
	// Root is the workspace where services are scaffolded, one directory per service.
	Root   string
	HubURL string
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}

	if c.HubURL == "" {
		c.HubURL = conventions.DefaultHubURL
	}
	c.HubURL = strings.TrimSuffix(c.HubURL, "/")

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "scaffold.Scaffolder"})

	return nil
}

// Scaffolder writes service skeletons under a workspace.
type Scaffolder struct {
	root   string
	hubURL string
	logger log.Logger
}

// New returns a new scaffolder.
func New(cfg Config) (*Scaffolder, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Scaffolder{
		root:   cfg.Root,
		hubURL: cfg.HubURL,
		logger: cfg.Logger,
	}, nil
}

// ServiceDir returns the directory of a service.
func (s *Scaffolder) ServiceDir(name string) string {
	return conventions.ServiceDir(s.root, name)
}

// ServiceExists returns true if the service directory exists.
func (s *Scaffolder) ServiceExists(name string) (bool, error) {
	if err := model.ValidateServiceName(name); err != nil {
		return false, err
	}
	return fileutil.Exists(s.ServiceDir(name))
}

type templateData struct {
	Name            string
	PackageName     string
	Description     string
	HubURL          string
	HubRegisterPath string
	Port            int
	Component       string
	Feature         model.Feature
}

func (s *Scaffolder) data(name, pkgName string, req model.Requirements) templateData {
	return templateData{
		Name:            name,
		PackageName:     strings.ToLower(pkgName),
		Description:     req.String("description"),
		HubURL:          s.hubURL,
		HubRegisterPath: conventions.HubRegisterPath,
		Port:            conventions.BackendPort,
	}
}

// Setup creates the skeleton of a service for its type.
func (s *Scaffolder) Setup(ctx context.Context, name string, t model.ServiceType, req model.Requirements) error {
	if err := model.ValidateServiceName(name); err != nil {
		return err
	}

	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"service": name, "type": t})
	dir := s.ServiceDir(name)

	var written int
	var err error
	switch t {
	case model.ServiceTypeFrontend:
		written, err = s.apply(ctx, dir, frontendLayout, s.data(name, name, req))
	case model.ServiceTypeBackend:
		written, err = s.apply(ctx, dir, backendLayout, s.data(name, name, req))
	case model.ServiceTypeFullstack:
		written, err = s.setupFullstack(ctx, dir, name, req)
	default:
		return fmt.Errorf("unknown service type %q: %w", t, model.ErrNotValid)
	}
	if err != nil {
		return fmt.Errorf("could not scaffold %s service: %w", t, err)
	}

	logger.Infof("Service structure ready at %s (%d new files)", dir, written)
	return nil
}

// setupFullstack scaffolds the frontend and backend subtrees concurrently, they
// never share files.
func (s *Scaffolder) setupFullstack(ctx context.Context, dir, name string, req model.Requirements) (int, error) {
	var frontendWritten, backendWritten int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		frontendWritten, err = s.apply(gctx, filepath.Join(dir, conventions.FrontendDir), frontendLayout, s.data(name, name+"-frontend", req))
		return err
	})
	g.Go(func() (err error) {
		backendWritten, err = s.apply(gctx, filepath.Join(dir, conventions.BackendDir), backendLayout, s.data(name, name+"-backend", req))
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	written, err := s.apply(ctx, dir, fullstackLayout, s.data(name, name, req))
	if err != nil {
		return 0, err
	}

	return frontendWritten + backendWritten + written, nil
}

func (s *Scaffolder) apply(ctx context.Context, dir string, l layout, data templateData) (int, error) {
	for _, d := range l.dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			return 0, fmt.Errorf("could not create directory %s: %w", d, err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("could not create service directory: %w", err)
	}

	written := 0
	for _, f := range l.files {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		ok, err := s.writeTemplate(filepath.Join(dir, f.path), f.template, data)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}

	return written, nil
}

func (s *Scaffolder) writeTemplate(path, tmpl string, data templateData) (bool, error) {
	t, ok := templates[tmpl]
	if !ok {
		return false, fmt.Errorf("missing template %s", tmpl)
	}

	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return false, fmt.Errorf("could not render %s: %w", tmpl, err)
	}

	written, err := fileutil.WriteIfAbsent(path, b.Bytes())
	if err != nil {
		return false, err
	}
	if written {
		s.logger.Debugf("Created %s", path)
	}

	return written, nil
}
