package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// SLAPolicyRepository reads the per-urgency time budgets.
type SLAPolicyRepository interface {
	ListAll(ctx context.Context) ([]domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) ListAll(ctx context.Context) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT id, urgency, assignment_time_hours, resolution_time_hours
        FROM sla_policies ORDER BY urgency`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		var policy domain.SLAPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.Urgency,
			&policy.AssignmentTimeHours,
			&policy.ResolutionTimeHours,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}
