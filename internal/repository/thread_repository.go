package repository

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ThreadRepository manages the append-only response/reply thread of tickets.
type ThreadRepository interface {
	CreateResponse(ctx context.Context, response *domain.Response) error
	CreateReply(ctx context.Context, reply *domain.Reply) error
	GetResponse(ctx context.Context, responseID int64) (*domain.Response, error)
	ListResponses(ctx context.Context, ticketIDs []string) ([]domain.Response, error)
	ListReplies(ctx context.Context, responseIDs []int64) ([]domain.Reply, error)
}

type threadRepository struct {
	db DBTX
}

func (r *threadRepository) CreateResponse(ctx context.Context, response *domain.Response) error {
	const query = `
        WITH inserted AS (
            INSERT INTO responses (ticket_id, responder, response, response_type)
            VALUES ($1,$2,$3,$4)
            RETURNING response_id, responder, created_at, updated_at
        )
        SELECT i.response_id, i.created_at, i.updated_at, COALESCE(u.username, '')
        FROM inserted i LEFT JOIN users u ON u.user_id = i.responder`
	err := r.db.QueryRow(ctx, query,
		response.TicketID,
		response.Responder,
		response.Body,
		response.ResponseType,
	).Scan(&response.ID, &response.CreatedAt, &response.UpdatedAt, &response.ResponderName)
	return mapPgError(err)
}

func (r *threadRepository) CreateReply(ctx context.Context, reply *domain.Reply) error {
	const query = `
        WITH inserted AS (
            INSERT INTO replies (response_id, user_id, reply)
            VALUES ($1,$2,$3)
            RETURNING reply_id, user_id, created_at
        )
        SELECT i.reply_id, i.created_at, COALESCE(u.username, '')
        FROM inserted i LEFT JOIN users u ON u.user_id = i.user_id`
	err := r.db.QueryRow(ctx, query,
		reply.ResponseID,
		reply.UserID,
		reply.Body,
	).Scan(&reply.ID, &reply.CreatedAt, &reply.Username)
	return mapPgError(err)
}

func (r *threadRepository) GetResponse(ctx context.Context, responseID int64) (*domain.Response, error) {
	const query = `
        SELECT r.response_id, r.ticket_id, r.responder, COALESCE(u.username, ''), r.response, r.response_type,
               r.created_at, r.updated_at
        FROM responses r LEFT JOIN users u ON u.user_id = r.responder
        WHERE r.response_id=$1`
	var response domain.Response
	if err := r.db.QueryRow(ctx, query, responseID).Scan(
		&response.ID,
		&response.TicketID,
		&response.Responder,
		&response.ResponderName,
		&response.Body,
		&response.ResponseType,
		&response.CreatedAt,
		&response.UpdatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &response, nil
}

func (r *threadRepository) ListResponses(ctx context.Context, ticketIDs []string) ([]domain.Response, error) {
	if len(ticketIDs) == 0 {
		return nil, nil
	}
	const query = `
        SELECT r.response_id, r.ticket_id, r.responder, COALESCE(u.username, ''), r.response, r.response_type,
               r.created_at, r.updated_at
        FROM responses r LEFT JOIN users u ON u.user_id = r.responder
        WHERE r.ticket_id = ANY($1)
        ORDER BY r.created_at ASC, r.response_id ASC`
	rows, err := r.db.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Response
	for rows.Next() {
		var response domain.Response
		if err := rows.Scan(
			&response.ID,
			&response.TicketID,
			&response.Responder,
			&response.ResponderName,
			&response.Body,
			&response.ResponseType,
			&response.CreatedAt,
			&response.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	return result, rows.Err()
}

func (r *threadRepository) ListReplies(ctx context.Context, responseIDs []int64) ([]domain.Reply, error) {
	if len(responseIDs) == 0 {
		return nil, nil
	}
	const query = `
        SELECT rp.reply_id, rp.response_id, rp.user_id, COALESCE(u.username, ''), rp.reply, rp.created_at
        FROM replies rp LEFT JOIN users u ON u.user_id = rp.user_id
        WHERE rp.response_id = ANY($1)
        ORDER BY rp.created_at ASC, rp.reply_id ASC`
	rows, err := r.db.Query(ctx, query, responseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reply
	for rows.Next() {
		var reply domain.Reply
		if err := rows.Scan(
			&reply.ID,
			&reply.ResponseID,
			&reply.UserID,
			&reply.Username,
			&reply.Body,
			&reply.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, reply)
	}
	return result, rows.Err()
}
