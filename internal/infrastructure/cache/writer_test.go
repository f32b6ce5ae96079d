package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncWriter_Stores(t *testing.T) {
	store, _ := setupStore(t, true)
	writer := NewAsyncWriter(store, time.Second)

	writer.Write("svc:/a", map[string]string{"a": "b"}, 0)

	require.NoError(t, writer.Wait(context.Background()))

	var out map[string]string
	require.True(t, store.GetJSON(context.Background(), "svc:/a", &out))
	assert.Equal(t, "b", out["a"])
}

func TestAsyncWriter_ReportsFailures(t *testing.T) {
	store, mr := setupStore(t, true)
	writer := NewAsyncWriter(store, time.Second)

	var mu sync.Mutex
	var failed []string
	writer.OnError = func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, key)
	}

	mr.SetError("boom")
	writer.Write("svc:/a", "x", 0)
	writer.Write("svc:/b", make(chan int), 0)

	require.NoError(t, writer.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"svc:/a", "svc:/b"}, failed)
}

func TestAsyncWriter_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	writer := NewAsyncWriter(blockingSetter{block: block}, time.Second)
	writer.Write("k", "v", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, writer.Wait(ctx), context.DeadlineExceeded)
	close(block)
	assert.NoError(t, writer.Wait(context.Background()))
}

type blockingSetter struct {
	block chan struct{}
}

func (b blockingSetter) SetJSON(ctx context.Context, _ string, _ any, _ time.Duration) (bool, error) {
	<-b.block
	return true, nil
}
