package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// ProblemTypeRepository reads the triage categories.
type ProblemTypeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ProblemType, error)
	ListActive(ctx context.Context) ([]domain.ProblemType, error)
}

type problemTypeRepository struct {
	pool *pgxpool.Pool
}

// NewProblemTypeRepository builds the repository.
func NewProblemTypeRepository(pool *pgxpool.Pool) ProblemTypeRepository {
	return &problemTypeRepository{pool: pool}
}

func (r *problemTypeRepository) GetByID(ctx context.Context, id string) (*domain.ProblemType, error) {
	const query = `
        SELECT id, name, description, is_active, created_at
        FROM problem_types WHERE id=$1`
	var pt domain.ProblemType
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&pt.ID,
		&pt.Name,
		&pt.Description,
		&pt.IsActive,
		&pt.CreatedAt,
	); err != nil {
		return nil, err
	}
	pt.CreatedAt = pt.CreatedAt.UTC()
	return &pt, nil
}

func (r *problemTypeRepository) ListActive(ctx context.Context) ([]domain.ProblemType, error) {
	const query = `
        SELECT id, name, description, is_active, created_at
        FROM problem_types WHERE is_active = TRUE ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ProblemType
	for rows.Next() {
		var pt domain.ProblemType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.Description, &pt.IsActive, &pt.CreatedAt); err != nil {
			return nil, err
		}
		pt.CreatedAt = pt.CreatedAt.UTC()
		result = append(result, pt)
	}
	return result, rows.Err()
}
