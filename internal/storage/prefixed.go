package storage

import "context"

type prefixed struct {
	inner  Storage
	prefix string
}

// Prefixed namespaces every key of inner with prefix, giving each session
// its own set of cart slots on a shared backend.
func Prefixed(inner Storage, prefix string) Storage {
	return &prefixed{inner: inner, prefix: prefix}
}

// SessionPrefix is the key namespace of one shopper session.
func SessionPrefix(sessionID string) string {
	return "session:" + sessionID + ":"
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}
