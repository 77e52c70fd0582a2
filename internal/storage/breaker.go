package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type breakerStorage struct {
	inner Storage
	cb    *gobreaker.CircuitBreaker[[]byte]
}

// WithBreaker wraps inner in a circuit breaker. After five consecutive
// backend failures calls fail fast with gobreaker.ErrOpenState for 30s.
// ErrNotFound is a normal answer and does not count as a failure.
func WithBreaker(inner Storage, name string, logger *zap.Logger) Storage {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("storage breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &breakerStorage{inner: inner, cb: gobreaker.NewCircuitBreaker[[]byte](st)}
}

func (b *breakerStorage) Get(ctx context.Context, key string) ([]byte, error) {
	return b.cb.Execute(func() ([]byte, error) {
		return b.inner.Get(ctx, key)
	})
}

func (b *breakerStorage) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.inner.Set(ctx, key, value)
	})
	return err
}

func (b *breakerStorage) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.inner.Delete(ctx, key)
	})
	return err
}
