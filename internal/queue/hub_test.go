package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub[int]()
	id1, q1 := h.Subscribe("presence", 4)
	id2, q2 := h.Subscribe("calibration", 4)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, h.Len())

	assert.Equal(t, 2, h.Publish(1))
	assert.Equal(t, 2, h.Publish(2))

	ctx := context.Background()
	for _, q := range []*Queue[int]{q1, q2} {
		a, err := q.Dequeue(ctx)
		require.NoError(t, err)
		b, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, []int{a, b})
	}
}

func TestHub_SlowSubscriberOnlyLosesItsOwnItems(t *testing.T) {
	h := NewHub[int]()
	_, slow := h.Subscribe("slow", 1)
	_, fast := h.Subscribe("fast", 10)

	assert.Equal(t, 2, h.Publish(1))
	assert.Equal(t, 1, h.Publish(2))
	assert.Equal(t, 1, h.Publish(3))

	assert.Equal(t, 1, slow.Len())
	assert.Equal(t, uint64(2), slow.Stats().Dropped)
	assert.Equal(t, 3, fast.Len())
	assert.Zero(t, fast.Stats().Dropped)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	h := NewHub[string]()
	assert.Zero(t, h.Publish("nobody"))
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub[int]()
	id, q := h.Subscribe("sse", 2)
	h.Unsubscribe(id)

	assert.Zero(t, h.Len())
	assert.Zero(t, h.Publish(1))
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	// Unknown ids are ignored.
	h.Unsubscribe("missing")
}

func TestHub_CloseAndStats(t *testing.T) {
	h := NewHub[int]()
	id, _ := h.Subscribe("presence", 3)
	h.Publish(5)

	stats := h.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, id, stats[0].ID)
	assert.Equal(t, "presence", stats[0].Name)
	assert.Equal(t, 1, stats[0].Length)
	assert.Equal(t, 3, stats[0].Capacity)

	h.Close()
	assert.Zero(t, h.Len())

	_, q := h.Subscribe("late", 1)
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
