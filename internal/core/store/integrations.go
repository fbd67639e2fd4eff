package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hookgate/hookgate/internal/core"
)

// Finder resolves integration descriptors for the webhook pipeline.
// A missing integration is (nil, nil).
type Finder interface {
	FindIntegration(ctx context.Context, id string) (*core.Integration, error)
}

const integrationColumns = `id, name, type, integration_key, service_id, enabled, signature_secret, created_at, updated_at`

// FindIntegration returns the integration with id, or nil when absent.
func (s *Store) FindIntegration(ctx context.Context, id string) (*core.Integration, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("integration id is required")
	}

	row := s.DB.QueryRowContext(ctx, s.rebind(`
		SELECT `+integrationColumns+`
		FROM integrations
		WHERE id = ?
	`), id)

	integration, err := scanIntegration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch integration: %w", err)
	}
	return integration, nil
}

// UpsertIntegration inserts or replaces an integration. CreatedAt survives
// replacement.
func (s *Store) UpsertIntegration(ctx context.Context, integration *core.Integration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if integration == nil {
		return errors.New("integration is required")
	}
	if strings.TrimSpace(integration.ID) == "" {
		return errors.New("integration id is required")
	}
	if strings.TrimSpace(integration.Key) == "" {
		return errors.New("integration key is required")
	}

	now := time.Now().UTC()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO integrations (`+integrationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			integration_key = excluded.integration_key,
			service_id = excluded.service_id,
			enabled = excluded.enabled,
			signature_secret = excluded.signature_secret,
			updated_at = excluded.updated_at
	`),
		integration.ID,
		integration.Name,
		string(integration.Type),
		integration.Key,
		integration.ServiceID,
		boolToInt(integration.Enabled),
		integration.SignatureSecret,
		integration.CreatedAt.Unix(),
		integration.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store integration: %w", err)
	}
	return nil
}

// ListIntegrations returns every integration ordered by id.
func (s *Store) ListIntegrations(ctx context.Context) ([]core.Integration, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *integration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	return out, nil
}

// DeleteIntegration removes an integration and reports whether it existed.
func (s *Store) DeleteIntegration(ctx context.Context, id string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}

	res, err := s.DB.ExecContext(ctx, s.rebind(`DELETE FROM integrations WHERE id = ?`), strings.TrimSpace(id))
	if err != nil {
		return false, fmt.Errorf("delete integration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete integration: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*core.Integration, error) {
	var (
		integration core.Integration
		typ         string
		enabled     int64
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(
		&integration.ID,
		&integration.Name,
		&typ,
		&integration.Key,
		&integration.ServiceID,
		&enabled,
		&integration.SignatureSecret,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	integration.Type = core.IntegrationType(typ)
	integration.Enabled = enabled != 0
	integration.CreatedAt = time.Unix(createdAt, 0).UTC()
	integration.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &integration, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
