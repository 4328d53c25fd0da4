package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	got := make(chan []byte, 1)
	sub, err := b.Subscribe(ctx, "gatekeeper.events", func(msg *Message) []byte {
		got <- msg.Data
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(ctx, "gatekeeper.events", []byte("hello")))

	select {
	case data := <-got:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestMemoryBus_WildcardSubjects(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	var count atomic.Int32
	_, err := b.Subscribe(ctx, "gatekeeper.agent.*", func(msg *Message) []byte {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "gatekeeper.agent.a1", []byte("x")))
	require.NoError(t, b.Publish(ctx, "gatekeeper.agent.a2", []byte("y")))
	require.NoError(t, b.Publish(ctx, "gatekeeper.other", []byte("z")))

	deadline := time.Now().Add(time.Second)
	for count.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int32(2), count.Load())
}

func TestMemoryBus_RequestReply(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	_, err := b.Subscribe(ctx, "gatekeeper.echo", func(msg *Message) []byte {
		return append([]byte("re:"), msg.Data...)
	})
	require.NoError(t, err)

	resp, err := b.Request(ctx, "gatekeeper.echo", []byte("ping"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("re:ping"), resp)
}

func TestMemoryBus_RequestNoResponders(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	_, err := b.Request(context.Background(), "nobody.home", []byte("x"), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoResponders)
}

func TestMemoryBus_ClosedBusRejectsOperations(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "s", nil), ErrClosed)
	_, err := b.Subscribe(context.Background(), "s", func(*Message) []byte { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueue_PushPullAckNack(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	q := b.Queue("work")
	require.NoError(t, q.Push(ctx, []byte("task-1")))

	task, err := q.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("task-1"), task.Data)

	// Nack returns the task for redelivery; Ack retires it.
	require.NoError(t, q.Nack(ctx, task.ID))
	task, err = q.Pull(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, task.ID))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryQueue_PullHonorsContextCancel(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Queue("empty").Pull(ctx)
	require.Error(t, err)
}
