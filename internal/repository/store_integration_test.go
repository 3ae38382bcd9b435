package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/ticketid"
)

// Runs against a disposable database named by TEST_POSTGRES_DSN; all tables are truncated.
func newPostgresStore(t *testing.T) (repository.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, zap.NewNop()))
	_, err = pool.Exec(ctx, `TRUNCATE replies, responses, ticket_history, tickets, ticket_counters, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
        INSERT INTO users (user_id, username, email, role, is_verified, status) VALUES
            (1, 'alice', 'alice@example.com', 'admin', true, 'active'),
            (2, 'andy', 'andy@example.com', 'agent', true, 'active'),
            (4, 'carol', 'carol@example.com', 'user', true, 'active')`)
	require.NoError(t, err)
	return repository.NewPostgresStore(pool), pool
}

func TestPostgresTicketRoundTrip(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	ticket := &domain.Ticket{
		ID:        "TK-2025-HA-001",
		Subject:   "Laptop will not boot",
		Issue:     "Black screen",
		Category:  domain.TicketCategoryHardware,
		Priority:  domain.TicketPriorityHigh,
		Status:    domain.TicketStatusYetToOpen,
		CreatedBy: 4,
	}
	require.NoError(t, store.Tickets().Create(ctx, ticket))
	assert.ErrorIs(t, store.Tickets().Create(ctx, ticket), repository.ErrDuplicateKey)

	agent := int64(2)
	err := store.InTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Tickets().GetForUpdate(ctx, ticket.ID)
		if err != nil {
			return err
		}
		locked.AssignedTo = &agent
		locked.Status = domain.TicketStatusInProgress
		locked.LastAction = domain.ActionAssigned
		return tx.Tickets().Update(ctx, locked)
	})
	require.NoError(t, err)

	got, err := store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAssigned())
	assert.Equal(t, "carol", got.CreatedByName)
	require.NotNil(t, got.AssignedToName)
	assert.Equal(t, "andy", *got.AssignedToName)

	_, err = store.Tickets().GetByID(ctx, "TK-2025-HA-999")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgresRollback(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Counters().Increment(ctx, 2025, "HA"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	serial, err := store.Counters().Increment(ctx, 2025, "HA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), serial)
}

func TestPostgresThreadAndStats(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{
		ID: "TK-2025-SO-001", Subject: "s", Issue: "i", Category: domain.TicketCategorySoftware,
		Priority: domain.TicketPriorityLow, Status: domain.TicketStatusResolved, CreatedBy: 4,
	}))
	response := &domain.Response{TicketID: "TK-2025-SO-001", Responder: 2, Body: "reinstall", ResponseType: domain.RoleAgent}
	require.NoError(t, store.Threads().CreateResponse(ctx, response))
	assert.Equal(t, "andy", response.ResponderName)

	reply := &domain.Reply{ResponseID: response.ID, UserID: 4, Body: "thanks"}
	require.NoError(t, store.Threads().CreateReply(ctx, reply))

	replies, err := store.Threads().ListReplies(ctx, []int64{response.ID})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "carol", replies[0].Username)

	stats, err := store.Tickets().StatsForCreator(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStats{Created: 1, Resolved: 1, Pending: 0}, stats)
}

func TestPostgresConcurrentCreationsGetUniqueIDs(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	const workers = 16
	var (
		seen sync.Map
		wg   sync.WaitGroup
	)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.InTx(ctx, func(tx repository.Store) error {
				serial, err := tx.Counters().Increment(ctx, 2025, "HA")
				if err != nil {
					return err
				}
				id := ticketid.Format(2025, "HA", serial)
				if _, dup := seen.LoadOrStore(id, struct{}{}); dup {
					return fmt.Errorf("serial %d handed out twice", serial)
				}
				return tx.Tickets().Create(ctx, &domain.Ticket{
					ID: id, Subject: "s", Issue: "i", Category: domain.TicketCategoryHardware,
					Priority: domain.TicketPriorityLow, Status: domain.TicketStatusYetToOpen, CreatedBy: 4,
				})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for serial := int64(1); serial <= workers; serial++ {
		_, ok := seen.Load(ticketid.Format(2025, "HA", serial))
		assert.True(t, ok, "serial %d missing", serial)
	}
	tickets, err := store.Tickets().List(ctx, repository.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, tickets, workers)
}

func TestPostgresConcurrentAssignHasSingleWinner(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{
		ID: "TK-2025-NE-001", Subject: "s", Issue: "i", Category: domain.TicketCategoryNetwork,
		Priority: domain.TicketPriorityMedium, Status: domain.TicketStatusYetToOpen, CreatedBy: 4,
	}))

	errTaken := errors.New("already assigned")
	const workers = 12
	var (
		winners int32
		wg      sync.WaitGroup
	)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InTx(ctx, func(tx repository.Store) error {
				ticket, err := tx.Tickets().GetForUpdate(ctx, "TK-2025-NE-001")
				if err != nil {
					return err
				}
				if ticket.IsAssigned() {
					return errTaken
				}
				agent := int64(2)
				ticket.AssignedTo = &agent
				ticket.Status = domain.TicketStatusInProgress
				ticket.LastAction = domain.ActionAssigned
				if err := tx.Tickets().Update(ctx, ticket); err != nil {
					return err
				}
				return tx.History().Create(ctx, &domain.TicketHistory{
					TicketID: ticket.ID, ActorID: agent, Action: domain.ActionAssigned,
				})
			})
			if err == nil {
				atomic.AddInt32(&winners, 1)
				return
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, errTaken)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&winners))

	history, err := store.History().ListByTicket(ctx, "TK-2025-NE-001")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPostgresCounterResync(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	for _, id := range []string{"TK-2025-HA-001", "TK-2025-HA-002", "TK-2024-HA-009"} {
		require.NoError(t, store.Tickets().Create(ctx, &domain.Ticket{
			ID: id, Subject: "s", Issue: "i", Category: domain.TicketCategoryHardware,
			Priority: domain.TicketPriorityLow, Status: domain.TicketStatusYetToOpen, CreatedBy: 4,
		}))
	}

	serial, err := store.Counters().Resync(ctx, 2025, "HA")
	require.NoError(t, err)
	assert.Equal(t, int64(2), serial)

	serial, err = store.Counters().Increment(ctx, 2025, "HA")
	require.NoError(t, err)
	assert.Equal(t, int64(3), serial)

	serial, err = store.Counters().Resync(ctx, 2025, "HA")
	require.NoError(t, err)
	assert.Equal(t, int64(3), serial, "resync never lowers the counter")
}
