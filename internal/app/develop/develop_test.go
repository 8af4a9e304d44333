package develop_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/devagent/internal/app/develop"
	"github.com/slok/devagent/internal/hub"
	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/scaffold"
	"github.com/slok/devagent/internal/storage/memory"
	"github.com/slok/devagent/internal/storage/storagemock"
)

type fakeRegistrar struct {
	mu   sync.Mutex
	regs []hub.Registration
}

func (f *fakeRegistrar) Register(_ context.Context, reg hub.Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs = append(f.regs, reg)
}

func (f *fakeRegistrar) Registrations() []hub.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hub.Registration{}, f.regs...)
}

var testNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

type testEnv struct {
	root      string
	repo      *memory.Repository
	registrar *fakeRegistrar
	handler   *develop.Handler
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	root := t.TempDir()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	sc, err := scaffold.New(scaffold.Config{Root: root})
	require.NoError(t, err)
	reg := &fakeRegistrar{}

	h, err := develop.NewHandler(develop.HandlerConfig{
		Repository: repo,
		Scaffolder: sc,
		Registrar:  reg,
		Logger:     log.Noop,
		Clock:      func() time.Time { return testNow },
	})
	require.NoError(t, err)

	return testEnv{root: root, repo: repo, registrar: reg, handler: h}
}

func TestNewHandler(t *testing.T) {
	sc, err := scaffold.New(scaffold.Config{Root: t.TempDir()})
	require.NoError(t, err)

	tests := map[string]struct {
		config develop.HandlerConfig
		expErr bool
	}{
		"valid config should create the handler": {
			config: develop.HandlerConfig{
				Repository: &storagemock.MockServiceRepository{},
				Scaffolder: sc,
				Registrar:  &fakeRegistrar{},
			},
		},
		"missing repository should fail": {
			config: develop.HandlerConfig{Scaffolder: sc, Registrar: &fakeRegistrar{}},
			expErr: true,
		},
		"missing scaffolder should fail": {
			config: develop.HandlerConfig{Repository: &storagemock.MockServiceRepository{}, Registrar: &fakeRegistrar{}},
			expErr: true,
		},
		"missing registrar should fail": {
			config: develop.HandlerConfig{Repository: &storagemock.MockServiceRepository{}, Scaffolder: sc},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h, err := develop.NewHandler(test.config)
			if test.expErr {
				assert.Error(t, err)
				assert.Nil(t, h)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, h)
			}
		})
	}
}

func TestHandlerCreateService(t *testing.T) {
	tests := map[string]struct {
		stored    *model.ServiceConfig
		task      model.Task
		expErr    error
		expFiles  []string
		expConfig *model.ServiceConfig
		expRegs   []hub.Registration
	}{
		"A new backend service should be stored, scaffolded and registered": {
			task: model.Task{
				Type:         model.TaskTypeCreateService,
				ServiceName:  "users",
				ServiceType:  model.ServiceTypeBackend,
				Requirements: model.Requirements{"description": "User service"},
			},
			expFiles: []string{"users/server.js", "users/package.json"},
			expConfig: &model.ServiceConfig{
				Name:         "users",
				Type:         model.ServiceTypeBackend,
				Requirements: model.Requirements{"description": "User service"},
				CreatedAt:    testNow,
				UpdatedAt:    testNow,
			},
			expRegs: []hub.Registration{{Name: "users", Type: model.ServiceTypeBackend}},
		},
		"An existing configuration should not be overwritten": {
			stored: &model.ServiceConfig{
				Name:         "web",
				Type:         model.ServiceTypeFrontend,
				Requirements: model.Requirements{"description": "original"},
			},
			task: model.Task{
				Type:         model.TaskTypeCreateService,
				ServiceName:  "web",
				ServiceType:  model.ServiceTypeFrontend,
				Requirements: model.Requirements{"description": "new"},
			},
			expFiles: []string{"web/next.config.js"},
			expConfig: &model.ServiceConfig{
				Name:         "web",
				Type:         model.ServiceTypeFrontend,
				Requirements: model.Requirements{"description": "original"},
			},
			expRegs: []hub.Registration{{Name: "web", Type: model.ServiceTypeFrontend}},
		},
		"A missing type should be taken from the stored configuration": {
			stored: &model.ServiceConfig{Name: "shop", Type: model.ServiceTypeFullstack},
			task: model.Task{
				Type:        model.TaskTypeCreateService,
				ServiceName: "shop",
			},
			expFiles:  []string{"shop/index.js", "shop/frontend/package.json", "shop/backend/server.js"},
			expConfig: &model.ServiceConfig{Name: "shop", Type: model.ServiceTypeFullstack},
			expRegs:   []hub.Registration{{Name: "shop", Type: model.ServiceTypeFullstack}},
		},
		"An unknown service type should fail without side effects": {
			task: model.Task{
				Type:        model.TaskTypeCreateService,
				ServiceName: "app",
				ServiceType: "mobile",
			},
			expErr: model.ErrNotValid,
		},
		"A missing type for an unknown service should fail": {
			task: model.Task{
				Type:        model.TaskTypeCreateService,
				ServiceName: "app",
			},
			expErr: model.ErrNotValid,
		},
		"An invalid service name should fail": {
			task: model.Task{
				Type:        model.TaskTypeCreateService,
				ServiceName: "../app",
				ServiceType: model.ServiceTypeBackend,
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			if test.stored != nil {
				require.NoError(t, env.repo.CreateService(ctx, *test.stored))
			}

			err := env.handler.Handle(ctx, test.task)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				assert.NoDirExists(t, filepath.Join(env.root, "app"))
				assert.Empty(t, env.registrar.Registrations())
				services, err := env.repo.ListServices(ctx)
				require.NoError(t, err)
				assert.Empty(t, services)
				return
			}
			require.NoError(t, err)

			for _, f := range test.expFiles {
				assert.FileExists(t, filepath.Join(env.root, f))
			}
			got, err := env.repo.GetService(ctx, test.task.ServiceName)
			require.NoError(t, err)
			assert.Equal(t, test.expConfig, got)
			assert.Equal(t, test.expRegs, env.registrar.Registrations())
		})
	}
}

func TestHandlerCreateServiceHubDownStillSucceeds(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	srv := httptest.NewServer(nil)
	hubURL := srv.URL
	srv.Close()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	sc, err := scaffold.New(scaffold.Config{Root: root, HubURL: hubURL})
	require.NoError(t, err)
	reg, err := hub.NewRegistrar(hub.RegistrarConfig{URL: hubURL, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)

	h, err := develop.NewHandler(develop.HandlerConfig{Repository: repo, Scaffolder: sc, Registrar: reg})
	require.NoError(t, err)

	err = h.Handle(ctx, model.Task{Type: model.TaskTypeCreateService, ServiceName: "users", ServiceType: model.ServiceTypeBackend})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "users", "controllers"))
}

func TestHandlerUpdateService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.repo.CreateService(ctx, model.ServiceConfig{Name: "users", Type: model.ServiceTypeBackend}))

	err := env.handler.Handle(ctx, model.Task{Type: model.TaskTypeUpdateService, ServiceName: "users"})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(env.root, "users", "server.js"))
	assert.Empty(t, env.registrar.Registrations())
}

func TestHandlerAddFeature(t *testing.T) {
	tests := map[string]struct {
		scaffolded bool
		stored     *model.ServiceConfig
		task       model.Task
		expErr     error
		expFiles   []string
		notFiles   []string
	}{
		"A feature for a missing service should fail": {
			task:   model.Task{Type: model.TaskTypeAddFeature, ServiceName: "users", Requirements: model.Requirements{"featureName": "Login"}},
			expErr: model.ErrNotFound,
		},
		"A requested feature should be written": {
			scaffolded: true,
			task: model.Task{
				Type:         model.TaskTypeAddFeature,
				ServiceName:  "users",
				Requirements: model.Requirements{"featureName": "Password Reset", "priority": "high"},
			},
			expFiles: []string{"users/features/password-reset.md"},
		},
		"A requested feature with unknown priority should fail": {
			scaffolded: true,
			task: model.Task{
				Type:         model.TaskTypeAddFeature,
				ServiceName:  "users",
				Requirements: model.Requirements{"featureName": "Login", "priority": "asap"},
			},
			expErr: model.ErrNotValid,
		},
		"Without a requested feature every pending feature should be written": {
			scaffolded: true,
			stored: &model.ServiceConfig{
				Name: "users",
				Type: model.ServiceTypeBackend,
				Features: []model.Feature{
					{Name: "Login", Priority: model.FeaturePriorityHigh, Status: model.FeatureStatusPending},
					{Name: "Signup", Priority: model.FeaturePriorityLow, Status: model.FeatureStatusDone},
					{Name: "Audit log", Priority: model.FeaturePriorityMedium, Status: model.FeatureStatusPending},
				},
			},
			task:     model.Task{Type: model.TaskTypeAddFeature, ServiceName: "users"},
			expFiles: []string{"users/features/login.md", "users/features/audit-log.md"},
			notFiles: []string{"users/features/signup.md"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			if test.stored != nil {
				require.NoError(t, env.repo.CreateService(ctx, *test.stored))
			}
			if test.scaffolded {
				require.NoError(t, env.handler.Handle(ctx, model.Task{Type: model.TaskTypeUpdateService, ServiceName: "users", ServiceType: model.ServiceTypeBackend}))
			}

			err := env.handler.Handle(ctx, test.task)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)

			for _, f := range test.expFiles {
				assert.FileExists(t, filepath.Join(env.root, f))
			}
			for _, f := range test.notFiles {
				assert.NoFileExists(t, filepath.Join(env.root, f))
			}
		})
	}
}

func TestHandlerGenerateCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	task := model.Task{
		Type:         model.TaskTypeGenerateCode,
		ServiceName:  "web",
		ServiceType:  model.ServiceTypeFrontend,
		Requirements: model.Requirements{"components": []any{"Header", "Footer"}},
	}

	// Not created yet.
	err := env.handler.Handle(ctx, task)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, env.handler.Handle(ctx, model.Task{Type: model.TaskTypeCreateService, ServiceName: "web", ServiceType: model.ServiceTypeFrontend}))
	require.NoError(t, env.handler.Handle(ctx, task))

	assert.FileExists(t, filepath.Join(env.root, "web", "src", "components", "Header.js"))
	assert.FileExists(t, filepath.Join(env.root, "web", "src", "components", "Footer.js"))

	// Nothing requested is a no-op.
	require.NoError(t, env.handler.Handle(ctx, model.Task{Type: model.TaskTypeGenerateCode, ServiceName: "web"}))
}

func TestHandlerIntegrateService(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.repo.CreateService(ctx, model.ServiceConfig{Name: "web", Type: model.ServiceTypeFrontend}))

	require.NoError(t, env.handler.Handle(ctx, model.Task{Type: model.TaskTypeIntegrateService, ServiceName: "web"}))
	assert.Equal(t, []hub.Registration{{Name: "web", Type: model.ServiceTypeFrontend}}, env.registrar.Registrations())
}

func TestHandlerUnknownTaskType(t *testing.T) {
	env := newTestEnv(t)

	err := env.handler.Handle(context.Background(), model.Task{Type: "deployService", ServiceName: "users", ServiceType: model.ServiceTypeBackend})
	assert.ErrorIs(t, err, model.ErrNotValid)
	assert.NoDirExists(t, filepath.Join(env.root, "users"))
}
