package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ProvisionFilter narrows ListProvisions. Zero values match everything.
type ProvisionFilter struct {
	Identity string
	Outcome  domain.Outcome
	Limit    int
}

const provisionColumns = `id, webhook_id, identity, event_type, outcome, region, resource_name, message, duration_ms, created_at`

// RecordProvision appends one delivery outcome to the audit log.
func (s *PostgresStore) RecordProvision(ctx context.Context, rec domain.ProvisionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provision_log (id, webhook_id, identity, event_type, outcome, region, resource_name, message, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.WebhookID, rec.Identity, rec.EventType, string(rec.Outcome),
		rec.Region, rec.ResourceName, rec.Message, rec.DurationMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting provision record: %w", err)
	}
	return nil
}

// ListProvisions returns audit records, newest first.
func (s *PostgresStore) ListProvisions(ctx context.Context, f ProvisionFilter) ([]domain.ProvisionRecord, error) {
	query := `SELECT ` + provisionColumns + ` FROM provision_log`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if f.Identity != "" {
		conditions = append(conditions, fmt.Sprintf("identity = $%d", argIdx))
		args = append(args, f.Identity)
		argIdx++
	}
	if f.Outcome != "" {
		conditions = append(conditions, fmt.Sprintf("outcome = $%d", argIdx))
		args = append(args, string(f.Outcome))
		argIdx++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying provisions: %w", err)
	}
	defer rows.Close()

	records := []domain.ProvisionRecord{}
	for rows.Next() {
		rec, err := scanProvision(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provision: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provisions: %w", err)
	}

	return records, nil
}

// GetProvision returns a single audit record, or nil when none matches.
func (s *PostgresStore) GetProvision(ctx context.Context, id string) (*domain.ProvisionRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+provisionColumns+` FROM provision_log WHERE id = $1`, id)
	rec, err := scanProvision(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying provision: %w", err)
	}
	return &rec, nil
}

func scanProvision(row pgx.Row) (domain.ProvisionRecord, error) {
	var (
		rec     domain.ProvisionRecord
		outcome string
	)
	err := row.Scan(
		&rec.ID, &rec.WebhookID, &rec.Identity, &rec.EventType, &outcome,
		&rec.Region, &rec.ResourceName, &rec.Message, &rec.DurationMs, &rec.CreatedAt,
	)
	rec.Outcome = domain.Outcome(outcome)
	return rec, err
}
