package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/ticketid"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when an insert collides with an existing primary key.
	ErrDuplicateKey = errors.New("duplicate key")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store groups the repositories that make up the ticket store. InTx runs fn against a
// transactional view of the store; fn's error rolls the whole transaction back.
type Store interface {
	Tickets() TicketRepository
	Threads() ThreadRepository
	History() TicketHistoryRepository
	Counters() CounterRepository
	Users() UserRepository
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// CounterRepository is the allocator's counter plus a repair step for partitions whose
// counter fell behind rows written without it.
type CounterRepository interface {
	ticketid.CounterStore
	// Resync raises the (year, code) counter to the highest serial already stored in tickets.
	Resync(ctx context.Context, year int, code string) (int64, error)
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgStore struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

// NewPostgresStore returns a Store backed by the pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

func (s *pgStore) Tickets() TicketRepository        { return &ticketRepository{db: s.db} }
func (s *pgStore) Threads() ThreadRepository        { return &threadRepository{db: s.db} }
func (s *pgStore) History() TicketHistoryRepository { return &ticketHistoryRepository{db: s.db} }
func (s *pgStore) Counters() CounterRepository      { return &counterRepository{db: s.db} }
func (s *pgStore) Users() UserRepository            { return &userRepository{db: s.db} }

func (s *pgStore) InTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgStore{pool: s.pool, db: tx, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
