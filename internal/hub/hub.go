package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slok/devagent/internal/conventions"
	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
)

// DataTypes are the data types every service is registered with.
var DataTypes = []string{"user", "notification", "document"}

// Registration is a service announced to the Integration Hub.
type Registration struct {
	Name string
	Type model.ServiceType
}

type registerRequest struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Type      string   `json:"type"`
	DataTypes []string `json:"dataTypes"`
}

// RegistrarConfig is the configuration for the hub registrar.
type RegistrarConfig struct {
	// URL is the Integration Hub base URL.
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *RegistrarConfig) defaults() error {
	if c.URL == "" {
		c.URL = conventions.DefaultHubURL
	}
	c.URL = strings.TrimSuffix(c.URL, "/")

	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "hub.Registrar"})

	return nil
}

// Registrar registers services with the Integration Hub on a best-effort basis.
type Registrar struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  log.Logger
}

// NewRegistrar returns a new hub registrar.
func NewRegistrar(cfg RegistrarConfig) (*Registrar, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Registrar{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

// Register announces a service to the hub. Failures are logged and never
// returned, a hub being down must not fail the development of a service.
func (r *Registrar) Register(ctx context.Context, reg Registration) {
	logger := r.logger.WithCtxValues(ctx).WithValues(log.Kv{"service": reg.Name})
	logger.Infof("Registering %s with Integration Hub", reg.Name)

	if err := r.register(ctx, reg); err != nil {
		logger.Warningf("Failed to register %s with Integration Hub: %s", reg.Name, err)
		return
	}

	logger.Infof("Successfully registered %s with Integration Hub", reg.Name)
}

func (r *Registrar) register(ctx context.Context, reg Registration) error {
	body, err := json.Marshal(registerRequest{
		Name:      reg.Name,
		URL:       ServiceURL(reg.Type),
		Type:      string(reg.Type),
		DataTypes: DataTypes,
	})
	if err != nil {
		return fmt.Errorf("could not marshal registration: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+conventions.HubRegisterPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// ServiceURL returns the local URL a service of type t is expected to listen on.
func ServiceURL(t model.ServiceType) string {
	port := conventions.BackendPort
	if t == model.ServiceTypeFrontend {
		port = conventions.FrontendPort
	}
	return fmt.Sprintf("http://localhost:%d", port)
}
