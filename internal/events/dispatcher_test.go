package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var got []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.TicketID)
		return errors.New("smtp down")
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketClosed, func(_ context.Context, e Event) error {
		got = append(got, "closed")
		return nil
	})

	err := d.Publish(context.Background(), NewEvent(EventTicketCreated, "TK-2025-NE-001", Actor{UserID: 3}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first:TK-2025-NE-001", "second:TK-2025-NE-001"}, got)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'é'
	}
	p := []rune(Preview(string(long)))
	assert.Len(t, p, 123)
}
