package ticketid

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

type memCounters struct {
	mu     sync.Mutex
	serial map[string]int64
}

func newMemCounters() *memCounters {
	return &memCounters{serial: map[string]int64{}}
}

func (m *memCounters) Increment(_ context.Context, year int, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d/%s", year, code)
	m.serial[key]++
	return m.serial[key], nil
}

type failingCounters struct{}

func (failingCounters) Increment(context.Context, int, string) (int64, error) {
	return 0, errors.New("counter unavailable")
}

var idPattern = regexp.MustCompile(`^TK-\d{4}-[A-Z]{2}-\d{3,}$`)

func fixedClock(year int) func() time.Time {
	return func() time.Time { return time.Date(year, time.March, 4, 10, 0, 0, 0, time.UTC) }
}

func TestCategoryCode(t *testing.T) {
	tests := []struct {
		category domain.TicketCategory
		want     string
	}{
		{domain.TicketCategoryHardware, "HA"},
		{domain.TicketCategorySoftware, "SO"},
		{domain.TicketCategoryNetwork, "NE"},
		{domain.TicketCategoryAccountAccess, "AC"},
		{domain.TicketCategoryOther, "OT"},
		{"x", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CategoryCode(tc.category), string(tc.category))
	}
}

func TestAllocatorSequencePerPartition(t *testing.T) {
	alloc := NewAllocator(fixedClock(2025))
	counters := newMemCounters()
	ctx := context.Background()

	first, err := alloc.Next(ctx, counters, domain.TicketCategoryNetwork)
	require.NoError(t, err)
	second, err := alloc.Next(ctx, counters, domain.TicketCategoryNetwork)
	require.NoError(t, err)
	other, err := alloc.Next(ctx, counters, domain.TicketCategorySoftware)
	require.NoError(t, err)

	assert.Equal(t, "TK-2025-NE-001", first)
	assert.Equal(t, "TK-2025-NE-002", second)
	assert.Equal(t, "TK-2025-SO-001", other)
}

func TestAllocatorPropagatesCounterFailure(t *testing.T) {
	alloc := NewAllocator(fixedClock(2025))
	_, err := alloc.Next(context.Background(), failingCounters{}, domain.TicketCategoryNetwork)
	require.Error(t, err)
}

func TestFormatWidensPast999(t *testing.T) {
	assert.Equal(t, "TK-2025-HA-999", Format(2025, "HA", 999))
	assert.Equal(t, "TK-2025-HA-1000", Format(2025, "HA", 1000))
	assert.Regexp(t, idPattern, Format(2025, "HA", 1000))
}

func TestParse(t *testing.T) {
	year, code, serial, err := Parse("TK-2025-NE-042")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, "NE", code)
	assert.Equal(t, int64(42), serial)

	for _, bad := range []string{"", "TK-2025-NE", "XX-2025-NE-001", "TK-25-NE-001", "TK-2025-ne-001", "TK-2025-NE-01", "TK-2025-NE-abc", "TK-2025-N1-001"} {
		_, _, _, err := Parse(bad)
		assert.ErrorIs(t, err, ErrMalformed, bad)
	}
}

func TestAllocatorConcurrentUnique(t *testing.T) {
	alloc := NewAllocator(fixedClock(2025))
	counters := newMemCounters()
	ctx := context.Background()

	const workers = 50
	var (
		wg   sync.WaitGroup
		seen sync.Map
		mu   sync.Mutex
		ids  []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := alloc.Next(ctx, counters, domain.TicketCategoryHardware)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			if _, loaded := seen.LoadOrStore(id, struct{}{}); loaded {
				t.Errorf("duplicate ticket id %s", id)
			}
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, workers)
	for _, id := range ids {
		assert.Regexp(t, idPattern, id)
	}
}
