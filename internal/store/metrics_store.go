package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/userdb-provisioner/internal/domain"
)

// ProvisionMetrics holds aggregated delivery outcome statistics.
type ProvisionMetrics struct {
	TotalDeliveries  int                    `json:"total_deliveries"`
	CreatedCount     int                    `json:"created_count"`
	ProcessedCount   int                    `json:"processed_count"`
	FailedCount      int                    `json:"failed_count"`
	ProcessedRate    float64                `json:"processed_rate"`
	AvgDurationMs    float64                `json:"avg_duration_ms"`
	DistinctIdentity int                    `json:"distinct_identities"`
	ByOutcome        map[domain.Outcome]int `json:"by_outcome"`
}

// GetProvisionMetrics returns aggregated outcome statistics from the audit log.
func (s *PostgresStore) GetProvisionMetrics(ctx context.Context) (*ProvisionMetrics, error) {
	m := ProvisionMetrics{ByOutcome: map[domain.Outcome]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COALESCE(AVG(duration_ms), 0) AS avg_duration_ms,
			COUNT(DISTINCT identity) FILTER (WHERE identity <> '') AS identities
		FROM provision_log
	`).Scan(&m.TotalDeliveries, &m.AvgDurationMs, &m.DistinctIdentity)
	if err != nil {
		return nil, fmt.Errorf("querying provision metrics: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT outcome, COUNT(*) FROM provision_log GROUP BY outcome
	`)
	if err != nil {
		return nil, fmt.Errorf("querying outcome counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		m.ByOutcome[domain.Outcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome counts: %w", err)
	}

	m.tally()
	return &m, nil
}

func (m *ProvisionMetrics) tally() {
	m.CreatedCount = m.ByOutcome[domain.OutcomeCreated]
	m.ProcessedCount = 0
	m.FailedCount = 0
	for outcome, n := range m.ByOutcome {
		switch {
		case outcome.Processed():
			m.ProcessedCount += n
		case outcome == domain.OutcomeTransientFailure, outcome == domain.OutcomeFatalFailure:
			m.FailedCount += n
		}
	}
	if m.TotalDeliveries > 0 {
		m.ProcessedRate = float64(m.ProcessedCount) / float64(m.TotalDeliveries) * 100
	}
}
