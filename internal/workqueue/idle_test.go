package workqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitAllIdleFollowsHandOffs(t *testing.T) {
	var downstreamDone atomic.Int32

	downstream := New("downstream", nil, map[Kind]Handler{
		kindWork: func(Item) error {
			time.Sleep(20 * time.Millisecond)
			downstreamDone.Add(1)
			return nil
		},
	})
	defer shutdown(t, downstream)

	upstream := New("upstream", nil, map[Kind]Handler{
		kindWork: func(item Item) error {
			time.Sleep(10 * time.Millisecond)
			_, err := downstream.Enqueue(kindWork, item.Payload)
			return err
		},
	})
	defer shutdown(t, upstream)

	for i := 0; i < 3; i++ {
		_, err := upstream.Enqueue(kindWork, i)
		require.NoError(t, err)
	}

	// Downstream starts idle, so checking it first must not short-circuit.
	require.True(t, WaitAllIdle(waitCtx(t), downstream, upstream))
	assert.Equal(t, int32(3), downstreamDone.Load())
}

func TestWaitAllIdleHonoursContext(t *testing.T) {
	block := make(chan struct{})
	q := New("blocked", nil, map[Kind]Handler{
		kindWork: func(Item) error {
			<-block
			return nil
		},
	})
	defer shutdown(t, q)
	defer close(block)

	_, err := q.Enqueue(kindWork, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, WaitAllIdle(ctx, q))
}
