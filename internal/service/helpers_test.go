package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/ticketid"
)

var (
	admin      = domain.Principal{UserID: 1, Role: domain.RoleAdmin, IsVerified: true}
	agentA     = domain.Principal{UserID: 2, Role: domain.RoleAgent, IsVerified: true}
	agentB     = domain.Principal{UserID: 3, Role: domain.RoleAgent, IsVerified: true}
	customer   = domain.Principal{UserID: 4, Role: domain.RoleUser, IsVerified: true}
	unverified = domain.Principal{UserID: 5, Role: domain.RoleUser, IsVerified: false}
	other      = domain.Principal{UserID: 6, Role: domain.RoleUser, IsVerified: true}
)

var fixedNow = time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	inner  events.Dispatcher
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{inner: events.NewInMemoryDispatcher(zap.NewNop())}
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	return d.inner.Publish(ctx, event)
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	d.inner.Subscribe(eventType, handler)
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, len(d.events))
	for i, e := range d.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	store      *memory.Store
	tickets    *TicketService
	stats      *StatsService
	dispatcher *recordingDispatcher
	cache      *fakeStatsCache
}

func seedUsers(store *memory.Store) {
	users := []domain.User{
		{ID: admin.UserID, Username: "alice", Email: "alice@example.com", Role: domain.RoleAdmin, IsVerified: true, Status: domain.UserStatusActive},
		{ID: agentA.UserID, Username: "andy", Email: "andy@example.com", Role: domain.RoleAgent, IsVerified: true, Status: domain.UserStatusActive},
		{ID: agentB.UserID, Username: "bea", Email: "bea@example.com", Role: domain.RoleAgent, IsVerified: true, Status: domain.UserStatusActive},
		{ID: customer.UserID, Username: "carol", Email: "carol@example.com", Role: domain.RoleUser, IsVerified: true, Status: domain.UserStatusActive},
		{ID: unverified.UserID, Username: "dan", Email: "dan@example.com", Role: domain.RoleUser, Status: domain.UserStatusActive},
		{ID: other.UserID, Username: "erin", Email: "erin@example.com", Role: domain.RoleUser, IsVerified: true, Status: domain.UserStatusActive},
	}
	for _, u := range users {
		store.SeedUser(u)
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	seedUsers(store)
	return newTestEnvWithStore(t, store, store)
}

// newTestEnvWithStore wires services over svcStore while seeding goes through mem.
func newTestEnvWithStore(t *testing.T, mem *memory.Store, svcStore repository.Store) *testEnv {
	t.Helper()
	policy, err := auth.NewPolicy()
	require.NoError(t, err)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cache := newFakeStatsCache()
	dispatcher := newRecordingDispatcher()
	now := func() time.Time { return fixedNow }

	stats := NewStatsService(StatsDependencies{
		Store:   svcStore,
		Cache:   cache,
		Policy:  policy,
		Logger:  logger,
		Metrics: metrics,
	})
	tickets := NewTicketService(TicketDependencies{
		Store:      svcStore,
		Allocator:  ticketid.NewAllocator(now),
		Policy:     policy,
		Threads:    NewThreadService(logger),
		Stats:      stats,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		Now:        now,
	})
	return &testEnv{store: mem, tickets: tickets, stats: stats, dispatcher: dispatcher, cache: cache}
}

func (e *testEnv) createTicket(t *testing.T, actor domain.Principal, category domain.TicketCategory) *domain.Ticket {
	t.Helper()
	ticket, err := e.tickets.CreateTicket(context.Background(), actor, CreateTicketInput{
		Subject:  "VPN drops",
		Issue:    "The VPN disconnects every ten minutes",
		Category: category,
		Priority: domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	return ticket
}

type fakeStatsCache struct {
	mu          sync.Mutex
	entries     map[int64]domain.TicketStats
	generations map[int64]int64
	invalidated []int64
	failGet     bool
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{entries: map[int64]domain.TicketStats{}, generations: map[int64]int64{}}
}

func (c *fakeStatsCache) Get(_ context.Context, userID int64) (domain.TicketStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return domain.TicketStats{}, false, errors.New("redis: connection refused")
	}
	stats, ok := c.entries[userID]
	return stats, ok, nil
}

func (c *fakeStatsCache) Generation(_ context.Context, userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID], nil
}

func (c *fakeStatsCache) Set(_ context.Context, userID, gen int64, stats domain.TicketStats) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != gen {
		return false, nil
	}
	c.entries[userID] = stats
	return true, nil
}

func (c *fakeStatsCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.generations[userID]++
	c.invalidated = append(c.invalidated, userID)
	return nil
}

// statsHookStore runs afterStats once the creator stats have been read.
type statsHookStore struct {
	repository.Store
	afterStats func()
}

func (h statsHookStore) Tickets() repository.TicketRepository {
	return statsHookTickets{TicketRepository: h.Store.Tickets(), afterStats: h.afterStats}
}

type statsHookTickets struct {
	repository.TicketRepository
	afterStats func()
}

func (h statsHookTickets) StatsForCreator(ctx context.Context, userID int64) (domain.TicketStats, error) {
	stats, err := h.TicketRepository.StatsForCreator(ctx, userID)
	if h.afterStats != nil {
		h.afterStats()
	}
	return stats, err
}

// failingStore forces ticket updates to fail inside transactions.
type failingStore struct {
	repository.Store
}

func (f failingStore) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return f.Store.InTx(ctx, func(tx repository.Store) error {
		return fn(failingStore{Store: tx})
	})
}

func (f failingStore) Tickets() repository.TicketRepository {
	return failingTickets{TicketRepository: f.Store.Tickets()}
}

type failingTickets struct {
	repository.TicketRepository
}

func (failingTickets) Update(context.Context, *domain.Ticket) error {
	return errors.New("forced update failure")
}

// collidingStore reports a duplicate ticket id for the first `remaining` inserts.
type collidingStore struct {
	repository.Store
	remaining *int
}

func (c collidingStore) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return c.Store.InTx(ctx, func(tx repository.Store) error {
		return fn(collidingStore{Store: tx, remaining: c.remaining})
	})
}

func (c collidingStore) Tickets() repository.TicketRepository {
	return collidingTickets{TicketRepository: c.Store.Tickets(), remaining: c.remaining}
}

type collidingTickets struct {
	repository.TicketRepository
	remaining *int
}

func (c collidingTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	if *c.remaining > 0 {
		*c.remaining--
		return fmt.Errorf("%w: tickets_pkey", repository.ErrDuplicateKey)
	}
	return c.TicketRepository.Create(ctx, ticket)
}
