package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/devagent/internal/hub"
	"github.com/slok/devagent/internal/model"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeHub struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	delay    time.Duration
}

func (f *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (f *fakeHub) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest{}, f.requests...)
}

func TestRegistrarRegister(t *testing.T) {
	tests := map[string]struct {
		reg    hub.Registration
		expURL string
	}{
		"Frontend services should be registered on port 3000": {
			reg:    hub.Registration{Name: "web", Type: model.ServiceTypeFrontend},
			expURL: "http://localhost:3000",
		},
		"Backend services should be registered on port 5000": {
			reg:    hub.Registration{Name: "api", Type: model.ServiceTypeBackend},
			expURL: "http://localhost:5000",
		},
		"Fullstack services should be registered on port 5000": {
			reg:    hub.Registration{Name: "shop", Type: model.ServiceTypeFullstack},
			expURL: "http://localhost:5000",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			fh := &fakeHub{status: http.StatusOK}
			srv := httptest.NewServer(fh)
			defer srv.Close()

			r, err := hub.NewRegistrar(hub.RegistrarConfig{URL: srv.URL + "/"})
			require.NoError(t, err)

			r.Register(context.Background(), test.reg)

			reqs := fh.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodPost, reqs[0].Method)
			assert.Equal(t, "/api/modules/register", reqs[0].Path)
			assert.Equal(t, map[string]any{
				"name":      test.reg.Name,
				"url":       test.expURL,
				"type":      string(test.reg.Type),
				"dataTypes": []any{"user", "notification", "document"},
			}, reqs[0].Body)
		})
	}
}

func TestRegistrarRegisterFailuresAreSwallowed(t *testing.T) {
	tests := map[string]struct {
		server func(t *testing.T) string
	}{
		"A hub returning errors should not panic nor block": {
			server: func(t *testing.T) string {
				srv := httptest.NewServer(&fakeHub{status: http.StatusInternalServerError})
				t.Cleanup(srv.Close)
				return srv.URL
			},
		},
		"An unreachable hub should not panic nor block": {
			server: func(t *testing.T) string {
				srv := httptest.NewServer(&fakeHub{status: http.StatusOK})
				srv.Close()
				return srv.URL
			},
		},
		"A slow hub should be bounded by the timeout": {
			server: func(t *testing.T) string {
				srv := httptest.NewServer(&fakeHub{status: http.StatusOK, delay: 10 * time.Second})
				t.Cleanup(srv.Close)
				return srv.URL
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := hub.NewRegistrar(hub.RegistrarConfig{
				URL:     test.server(t),
				Timeout: 100 * time.Millisecond,
			})
			require.NoError(t, err)

			start := time.Now()
			r.Register(context.Background(), hub.Registration{Name: "api", Type: model.ServiceTypeBackend})
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}
