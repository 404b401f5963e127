package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// ErrStaleSLAFlags is returned when the stored escalation flags no longer match the
// flags a scan evaluated against.
var ErrStaleSLAFlags = errors.New("sla flags changed since evaluation")

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error)
	// UpdateSLAFlags atomically replaces prev with next. It fails with ErrStaleSLAFlags
	// when the row no longer carries prev.
	UpdateSLAFlags(ctx context.Context, ticketID string, prev, next domain.SLAFlags) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, status, urgency, problem_type_id, requester_id, creator_id,
               technician_id, created_at, assigned_at, resolved_at, sla_warning_level, sla_violation_sent, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, urgency, problem_type_id, requester_id, creator_id, technician_id, assigned_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		urgencyArg(ticket.Urgency),
		ticket.ProblemTypeID,
		ticket.RequesterID,
		ticket.CreatorID,
		ticket.TechnicianID,
		domain.UTCPtr(ticket.AssignedAt),
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return err
	}
	ticket.NormalizeTimes()
	return nil
}

// Update writes the lifecycle columns. Escalation flags are owned by UpdateSLAFlags.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, urgency=$4, problem_type_id=$5,
            technician_id=$6, assigned_at=$7, resolved_at=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		urgencyArg(ticket.Urgency),
		ticket.ProblemTypeID,
		ticket.TechnicianID,
		domain.UTCPtr(ticket.AssignedAt),
		domain.UTCPtr(ticket.ResolvedAt),
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	if err != nil {
		return err
	}
	ticket.UpdatedAt = ticket.UpdatedAt.UTC()
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	if len(statuses) == 0 {
		return []domain.Ticket{}, nil
	}
	args := make([]any, 0, len(statuses))
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE status IN (%s) ORDER BY created_at ASC`,
		ticketColumns, strings.Join(placeholders, ","))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) UpdateSLAFlags(ctx context.Context, ticketID string, prev, next domain.SLAFlags) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current domain.SLAFlags
	const lockQuery = `SELECT sla_warning_level, sla_violation_sent FROM tickets WHERE id=$1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lockQuery, ticketID).Scan(&current.WarningLevel, &current.ViolationSent); err != nil {
		return err
	}
	if !current.Equal(prev) {
		return ErrStaleSLAFlags
	}

	const updateQuery = `UPDATE tickets SET sla_warning_level=$1, sla_violation_sent=$2 WHERE id=$3`
	if _, err := tx.Exec(ctx, updateQuery, next.WarningLevel, next.ViolationSent, ticketID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket  domain.Ticket
		urgency *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&urgency,
		&ticket.ProblemTypeID,
		&ticket.RequesterID,
		&ticket.CreatorID,
		&ticket.TechnicianID,
		&ticket.CreatedAt,
		&ticket.AssignedAt,
		&ticket.ResolvedAt,
		&ticket.SLA.WarningLevel,
		&ticket.SLA.ViolationSent,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if urgency != nil {
		u := domain.Urgency(*urgency)
		ticket.Urgency = &u
	}
	ticket.NormalizeTimes()
	return &ticket, nil
}

func urgencyArg(u *domain.Urgency) *string {
	if u == nil {
		return nil
	}
	s := string(*u)
	return &s
}
