package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrWriteSkipped = errors.New("cache store disabled or unavailable")

type jsonSetter interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) (bool, error)
}

// AsyncWriter stores entries off the request path. Failures go to the log
// and, when set, to OnError.
type AsyncWriter struct {
	store   jsonSetter
	timeout time.Duration
	wg      sync.WaitGroup

	OnError func(key string, err error)
}

func NewAsyncWriter(store jsonSetter, timeout time.Duration) *AsyncWriter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AsyncWriter{store: store, timeout: timeout}
}

func (w *AsyncWriter) Write(key string, v any, ttl time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		ok, err := w.store.SetJSON(ctx, key, v, ttl)
		switch {
		case err != nil:
			slog.Error("cache write rejected", slog.String("key", key), slog.Any("error", err))
			w.report(key, err)
		case !ok:
			slog.Debug("cache write skipped", slog.String("key", key))
			w.report(key, ErrWriteSkipped)
		default:
			slog.Debug("cached response", slog.String("key", key))
		}
	}()
}

// Wait blocks until pending writes finish or ctx is done.
func (w *AsyncWriter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncWriter) report(key string, err error) {
	if w.OnError != nil {
		w.OnError(key, err)
	}
}
