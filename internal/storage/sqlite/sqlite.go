package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/devagent/internal/log"
	"github.com/slok/devagent/internal/model"
	"github.com/slok/devagent/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.ServiceRepository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// DB returns the underlying database so other repositories can share it.
func (r *Repository) DB() *sql.DB { return r.db }

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateService creates a new service in the repository.
func (r *Repository) CreateService(ctx context.Context, s model.ServiceConfig) error {
	requirements, features, err := marshalServiceFields(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO services (name, type, requirements, features, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		s.Name,
		s.Type,
		requirements,
		features,
		s.CreatedAt.UnixNano(),
		s.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: services.") {
			return fmt.Errorf("service %s: %w", s.Name, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert service: %w", err)
	}

	r.logger.Debugf("Created service in repository: %s", s.Name)
	return nil
}

// GetService retrieves a service by name.
func (r *Repository) GetService(ctx context.Context, name string) (*model.ServiceConfig, error) {
	query := `
		SELECT name, type, requirements, features, created_at, updated_at
		FROM services
		WHERE name = ?
	`

	s, err := r.scanRow(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service %s: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query service: %w", err)
	}

	return &s, nil
}

// ListServices returns all services sorted by name.
func (r *Repository) ListServices(ctx context.Context) ([]model.ServiceConfig, error) {
	query := `
		SELECT name, type, requirements, features, created_at, updated_at
		FROM services
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query services: %w", err)
	}
	defer rows.Close()

	services := []model.ServiceConfig{}
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		services = append(services, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return services, nil
}

// UpdateService updates an existing service.
func (r *Repository) UpdateService(ctx context.Context, s model.ServiceConfig) error {
	requirements, features, err := marshalServiceFields(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE services
		SET
			type = ?,
			requirements = ?,
			features = ?,
			created_at = ?,
			updated_at = ?
		WHERE name = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		s.Type,
		requirements,
		features,
		s.CreatedAt.UnixNano(),
		s.UpdatedAt.UnixNano(),
		s.Name,
	)
	if err != nil {
		return fmt.Errorf("could not update service: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("service %s: %w", s.Name, model.ErrNotFound)
	}

	r.logger.Debugf("Updated service in repository: %s", s.Name)
	return nil
}

// DeleteService deletes a service.
func (r *Repository) DeleteService(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("could not delete service: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("service %s: %w", name, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted service from repository: %s", name)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(sc scanner) (model.ServiceConfig, error) {
	var s model.ServiceConfig
	var requirements, features string
	var createdAt, updatedAt int64

	err := sc.Scan(
		&s.Name,
		&s.Type,
		&requirements,
		&features,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.ServiceConfig{}, err
	}

	if err := json.Unmarshal([]byte(requirements), &s.Requirements); err != nil {
		return model.ServiceConfig{}, fmt.Errorf("could not decode requirements: %w", err)
	}
	if err := json.Unmarshal([]byte(features), &s.Features); err != nil {
		return model.ServiceConfig{}, fmt.Errorf("could not decode features: %w", err)
	}
	if len(s.Features) == 0 {
		s.Features = nil
	}
	s.CreatedAt = timeFromUnixNano(createdAt)
	s.UpdatedAt = timeFromUnixNano(updatedAt)

	return s, nil
}

func marshalServiceFields(s model.ServiceConfig) (requirements, features string, err error) {
	req := s.Requirements
	if req == nil {
		req = model.Requirements{}
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", "", fmt.Errorf("could not marshal requirements: %w", err)
	}

	feats := s.Features
	if feats == nil {
		feats = []model.Feature{}
	}
	featsJSON, err := json.Marshal(feats)
	if err != nil {
		return "", "", fmt.Errorf("could not marshal features: %w", err)
	}

	return string(reqJSON), string(featsJSON), nil
}

func timeFromUnixNano(nsec int64) time.Time { return time.Unix(0, nsec).UTC() }
