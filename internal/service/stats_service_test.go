package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestStatsCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := env.createTicket(t, customer, domain.TicketCategoryNetwork)
	inProgress := env.createTicket(t, customer, domain.TicketCategoryNetwork)
	resolved := env.createTicket(t, customer, domain.TicketCategoryHardware)
	env.createTicket(t, other, domain.TicketCategoryHardware)

	_, err := env.tickets.SelfAssign(ctx, agentA, inProgress.ID)
	require.NoError(t, err)
	_, err = env.tickets.Resolve(ctx, agentA, resolved.ID)
	require.NoError(t, err)

	stats, err := env.stats.GetStats(ctx, customer, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStats{Created: 3, Resolved: 1, Pending: 1}, stats)
	assert.LessOrEqual(t, stats.Resolved+stats.Pending, stats.Created)

	_, err = env.tickets.Close(ctx, customer, pending.ID)
	require.NoError(t, err)
	stats, err = env.stats.GetStats(ctx, customer, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "closing does not change status")
}

func TestStatsAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createTicket(t, other, domain.TicketCategoryNetwork)

	_, err := env.stats.GetStats(ctx, customer, other.UserID)
	assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))

	_, err = env.stats.GetStats(ctx, agentA, other.UserID)
	assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))

	stats, err := env.stats.GetStats(ctx, admin, other.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Created)

	_, err = env.stats.GetStats(ctx, domain.Principal{}, 1)
	assert.Equal(t, apperrors.KindAuth, apperrors.KindOf(err))
}

func TestStatsCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.cache.entries[customer.UserID] = domain.TicketStats{Created: 99}
	stats, err := env.stats.GetStats(ctx, customer, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), stats.Created, "served from cache")

	env.createTicket(t, customer, domain.TicketCategoryNetwork)
	stats, err = env.stats.GetStats(ctx, customer, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Created, "creation invalidates the entry")
	assert.Equal(t, stats, env.cache.entries[customer.UserID])

	env.cache.failGet = true
	stats, err = env.stats.GetStats(ctx, customer, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Created, "cache errors fall back to the store")
}

func TestStatsNotCachedWhenInvalidatedDuringLoad(t *testing.T) {
	mem := memory.NewStore()
	seedUsers(mem)
	var env *testEnv
	hook := statsHookStore{Store: mem, afterStats: func() {
		env.stats.Invalidate(context.Background(), customer.UserID)
	}}
	env = newTestEnvWithStore(t, mem, hook)
	ctx := context.Background()

	stats, err := env.stats.GetStats(ctx, customer, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStats{}, stats)

	_, cached := env.cache.entries[customer.UserID]
	assert.False(t, cached, "a load that raced an invalidation is not cached")
}
