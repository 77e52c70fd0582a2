// Package session owns the cart stores of active shopper sessions.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spirithubcafe/spirithubcafe-sub004/internal/cart"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/notice"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTTL is how long an unused session store stays in memory
	DefaultIdleTTL = 30 * time.Minute
	// DefaultCleanupInterval is how often idle sessions are evicted
	DefaultCleanupInterval = 30 * time.Second

	inboxLimit       = 20
	migrationTimeout = 5 * time.Second
)

// Session is one shopper's cart store and its pending notices.
type Session struct {
	ID    string
	Store *cart.Store
	Inbox *notice.Inbox

	dispatcher *notice.Dispatcher
	lastSeen   atomic.Int64
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

type Options struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// Registry creates session stores on first use and evicts idle ones. Carts
// are durable, so an evicted session simply reloads on its next request.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	sfg      singleflight.Group // collapses concurrent first requests of a session

	storage storage.Storage
	opts    Options
	logger  *zap.Logger

	stopCleanup chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func NewRegistry(s storage.Storage, opts Options, logger *zap.Logger) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}

	r := &Registry{
		sessions:    make(map[string]*Session),
		storage:     s,
		opts:        opts,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// Get returns the session with id, creating it when needed. A new session
// first runs the one-time legacy cart migration for its storage namespace,
// using path to pick the target region.
func (r *Registry) Get(ctx context.Context, id, path string) *Session {
	if sess, ok := r.lookup(id); ok {
		return sess
	}

	v, _, _ := r.sfg.Do(id, func() (interface{}, error) {
		if existing, ok := r.lookup(id); ok {
			return existing, nil
		}

		slots := storage.Prefixed(r.storage, storage.SessionPrefix(id))

		// the migration outlives the request that happened to create the session
		migrateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), migrationTimeout)
		cart.MigrateLegacy(migrateCtx, slots, path, r.logger)
		cancel()

		inbox := notice.NewInbox(inboxLimit)
		dispatcher := notice.NewDispatcher(r.logger, notice.DefaultBuffer,
			inbox, notice.LogSink(r.logger.With(zap.String("session_id", id))))

		created := &Session{
			ID:         id,
			Store:      cart.NewStore(slots, dispatcher, r.logger.With(zap.String("session_id", id))),
			Inbox:      inbox,
			dispatcher: dispatcher,
		}

		created.touch()

		r.mu.Lock()
		r.sessions[id] = created
		r.mu.Unlock()

		r.logger.Debug("session created", zap.String("session_id", id))
		return created, nil
	})

	sess := v.(*Session)
	if live, ok := r.lookup(id); ok && live == sess {
		return live
	}
	// evicted between creation and now
	return r.Get(ctx, id, path)
}

// lookup returns the session with id and marks it used. The touch happens
// under the registry lock so a concurrent eviction pass sees it.
func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if ok {
		sess.touch()
	}
	return sess, ok
}

// ClearRegion empties one region's cart of session id, through the live
// store when the session is in memory, otherwise by dropping its slot.
func (r *Registry) ClearRegion(ctx context.Context, id string, region domain.Region) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if ok {
		sess.Store.ClearRegion(ctx, region)
		return nil
	}

	slots := storage.Prefixed(r.storage, storage.SessionPrefix(id))
	return slots.Delete(ctx, domain.CartKey(region))
}

// Len returns the number of sessions held in memory
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle(time.Now())
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	var evicted []*Session

	r.mu.Lock()
	for id, sess := range r.sessions {
		if sess.idleSince(now) > r.opts.IdleTTL {
			delete(r.sessions, id)
			evicted = append(evicted, sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range evicted {
		sess.dispatcher.Close()
		r.logger.Debug("session evicted", zap.String("session_id", sess.ID))
	}
}

// Close stops the cleanup loop and flushes every session's notices.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.stopCleanup)
		r.wg.Wait()

		r.mu.Lock()
		defer r.mu.Unlock()
		for id, sess := range r.sessions {
			sess.dispatcher.Close()
			delete(r.sessions, id)
		}
	})
}
