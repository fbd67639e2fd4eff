package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hookgate/hookgate/internal/core"
)

// FindOpenIncident returns the unresolved incident for a service and dedup
// key, or nil when there is none.
func (s *Store) FindOpenIncident(ctx context.Context, serviceID, dedupKey string) (*core.Incident, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	row := s.DB.QueryRowContext(ctx, s.rebind(`
		SELECT id, dedup_key, service_id, title, status, urgency, created_at, updated_at
		FROM incidents
		WHERE service_id = ? AND dedup_key = ? AND status <> ?
		ORDER BY created_at DESC
		LIMIT 1
	`), serviceID, dedupKey, string(core.IncidentResolved))

	var (
		incident  core.Incident
		status    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&incident.ID, &incident.DedupKey, &incident.ServiceID, &incident.Title,
		&status, &incident.Urgency, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch incident: %w", err)
	}

	incident.Status = core.IncidentStatus(status)
	incident.CreatedAt = time.Unix(createdAt, 0).UTC()
	incident.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &incident, nil
}

// SaveIncident inserts or updates an incident by id.
func (s *Store) SaveIncident(ctx context.Context, incident *core.Incident) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if incident == nil || incident.ID == "" {
		return errors.New("incident id is required")
	}

	_, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO incidents (id, dedup_key, service_id, title, status, urgency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			urgency = excluded.urgency,
			updated_at = excluded.updated_at
	`),
		incident.ID,
		incident.DedupKey,
		incident.ServiceID,
		incident.Title,
		string(incident.Status),
		incident.Urgency,
		incident.CreatedAt.Unix(),
		incident.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store incident: %w", err)
	}
	return nil
}
