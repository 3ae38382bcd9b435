package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketFilter captures role-scoped listing parameters.
type TicketFilter struct {
	CreatedBy *int64
	// AssignedToOrUnassigned matches tickets assigned to this user or to nobody.
	AssignedToOrUnassigned *int64
	Statuses               []domain.TicketStatus
	Limit                  int
	Offset                 int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate reads the ticket and holds its row lock until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	StatsForCreator(ctx context.Context, userID int64) (domain.TicketStats, error)
}

type ticketRepository struct {
	db DBTX
}

const ticketColumns = `t.ticket_id, t.subject, t.issue, t.category, t.priority, t.status, t.last_action,
               t.attachment, t.created_by, t.assigned_to, t.updated_by, t.created_at, t.updated_at, t.closed_at,
               u.username, a.username`

const ticketJoins = `FROM tickets t
        JOIN users u ON u.user_id = t.created_by
        LEFT JOIN users a ON a.user_id = t.assigned_to`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_id, subject, issue, category, priority, status, last_action, attachment, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)
        RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.Subject,
		ticket.Issue,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.LastAction,
		ticket.Attachment,
		ticket.CreatedBy,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
	return mapPgError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, last_action=NULLIF($2,''), assigned_to=$3, updated_by=$4,
            closed_at=$5, updated_at=NOW()
        WHERE ticket_id=$6
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.Status,
		ticket.LastAction,
		ticket.AssignedTo,
		ticket.UpdatedBy,
		ticket.ClosedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return mapPgError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE t.ticket_id=$1`, ticketColumns, ticketJoins)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE t.ticket_id=$1 FOR UPDATE OF t`, ticketColumns, ticketJoins)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapPgError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("t.created_by=$%d", len(args)))
	}
	if filter.AssignedToOrUnassigned != nil {
		args = append(args, *filter.AssignedToOrUnassigned)
		clauses = append(clauses, fmt.Sprintf("(t.assigned_to IS NULL OR t.assigned_to=$%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY t.created_at DESC, t.ticket_id DESC LIMIT %d OFFSET %d`,
		ticketColumns, ticketJoins, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
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

func (r *ticketRepository) StatsForCreator(ctx context.Context, userID int64) (domain.TicketStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = 'resolved'),
               COUNT(*) FILTER (WHERE status = 'yet_to_open')
        FROM tickets WHERE created_by=$1`
	var stats domain.TicketStats
	err := r.db.QueryRow(ctx, query, userID).Scan(&stats.Created, &stats.Resolved, &stats.Pending)
	return stats, err
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		lastAction *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Issue,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&lastAction,
		&ticket.Attachment,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.UpdatedBy,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.CreatedByName,
		&ticket.AssignedToName,
	); err != nil {
		return nil, err
	}
	if lastAction != nil {
		ticket.LastAction = domain.TicketAction(strings.ToLower(*lastAction))
	}
	return &ticket, nil
}
