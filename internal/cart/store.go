// Package cart keeps the shopping cart of one session partitioned by
// storefront region and synchronised with durable storage.
//
// A Store only ever holds the lines of its active region. Switching region
// (Navigate / ObserveRegion) swaps the whole line set under the store lock,
// so the region pointer and the lines always belong together. Every mutation
// is followed by a persistence step that writes the active region's slot
// unless nothing changed since the last write.
//
// Callers serving several requests of one session concurrently use Within,
// which binds the region of the request path to the mutation: the switch,
// the change, the write and the returned snapshot happen under one lock.
//
// No operation returns an error: unreadable storage loads as an empty cart,
// failed writes are logged and the in-memory state stays authoritative.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/region"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/stock"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage"
	"go.uber.org/zap"
)

// Notifier receives stock notices. Implementations must not block.
type Notifier interface {
	Notify(n domain.Notice)
}

type Store struct {
	mu       sync.Mutex
	storage  storage.Storage
	notifier Notifier
	logger   *zap.Logger

	active        domain.Region
	loaded        bool
	lines         []domain.CartLine
	lastPersisted uint64
}

func NewStore(s storage.Storage, notifier Notifier, logger *zap.Logger) *Store {
	return &Store{
		storage:  s,
		notifier: notifier,
		logger:   logger,
	}
}

// Navigate makes the cart of the region that path belongs to active.
func (s *Store) Navigate(ctx context.Context, path string) {
	s.ObserveRegion(ctx, region.FromPath(path))
}

// ObserveRegion switches the store to r, loading r's cart from storage.
// It is a no-op when r is already active.
func (s *Store) ObserveRegion(ctx context.Context, r domain.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchTo(ctx, r)
}

// Region returns the active region.
func (s *Store) Region() domain.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(context.Background())
	return s.active
}

func (s *Store) switchTo(ctx context.Context, r domain.Region) {
	if s.loaded && s.active == r {
		return
	}

	// the region pointer moves before any data is loaded for it
	s.active = r
	s.loaded = true
	s.lines = s.load(ctx, r)
	s.lastPersisted = fingerprint(r, s.lines)

	s.logger.Debug("cart region activated",
		zap.String("region", string(r)),
		zap.Int("lines", len(s.lines)))
}

func (s *Store) ensureLoaded(ctx context.Context) {
	if !s.loaded {
		s.switchTo(ctx, domain.DefaultRegion)
	}
}

func (s *Store) load(ctx context.Context, r domain.Region) []domain.CartLine {
	data, err := s.storage.Get(ctx, domain.CartKey(r))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("cart load failed, starting empty",
				zap.String("region", string(r)), zap.Error(err))
		}
		return []domain.CartLine{}
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		s.logger.Warn("cart data unreadable, starting empty",
			zap.String("region", string(r)), zap.Error(err))
		return []domain.CartLine{}
	}

	// first occurrence of an id wins; quantities are brought back under the ceiling
	valid := make([]domain.CartLine, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}
		l.Quantity = stock.Clamp(l.Quantity, l.MaxStock)
		valid = append(valid, l)
	}
	return valid
}

// AddItem adds qty units of candidate to the active cart (qty below 1 adds
// one). The stock ceiling comes from the candidate, else from the line
// already in the cart. An add that would pass the ceiling is cut down, or
// rejected entirely when the line is already full; both raise a notice.
func (s *Store) AddItem(ctx context.Context, candidate domain.CartLine, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	s.addItem(ctx, s.active, candidate, qty)
}

func (s *Store) addItem(ctx context.Context, target domain.Region, candidate domain.CartLine, qty int) {
	if qty < 1 {
		qty = 1
	}

	idx := s.indexOf(candidate.ID)
	current := 0
	ceiling := candidate.MaxStock
	if idx >= 0 {
		current = s.lines[idx].Quantity
		if ceiling == nil {
			ceiling = s.lines[idx].MaxStock
		}
	}

	limit := stock.EffectiveCeiling(ceiling)
	if current >= limit {
		s.notify(target, candidate.ID, limit)
		return
	}

	allowed := min(qty, stock.Remaining(current, ceiling))
	if allowed < qty {
		s.notify(target, candidate.ID, limit)
	}

	if idx >= 0 {
		s.lines[idx].Quantity = current + allowed
		s.lines[idx].MaxStock = ceiling
	} else {
		line := candidate
		line.Quantity = allowed
		line.MaxStock = ceiling
		s.lines = append(s.lines, line)
	}

	s.persist(ctx, target)
}

// RemoveItem deletes the line with id. Unknown ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	s.removeItem(ctx, s.active, id)
}

func (s *Store) removeItem(ctx context.Context, target domain.Region, id string) {
	s.remove(id)
	s.persist(ctx, target)
}

// UpdateQuantity sets the quantity of line id, clamped to its stock ceiling.
// A quantity of zero or less removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, id string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	s.updateQuantity(ctx, s.active, id, qty)
}

func (s *Store) updateQuantity(ctx context.Context, target domain.Region, id string, qty int) {
	if qty <= 0 {
		s.removeItem(ctx, target, id)
		return
	}

	idx := s.indexOf(id)
	if idx < 0 {
		return
	}

	ceiling := s.lines[idx].MaxStock
	clamped := stock.Clamp(qty, ceiling)
	if clamped < qty {
		s.notify(target, id, stock.EffectiveCeiling(ceiling))
	}
	s.lines[idx].Quantity = clamped

	s.persist(ctx, target)
}

// Clear empties the active region's cart.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	s.clear(ctx, s.active)
}

func (s *Store) clear(ctx context.Context, target domain.Region) {
	s.lines = []domain.CartLine{}
	s.persist(ctx, target)
}

// Tx changes the cart of one region from inside Within. It is only valid
// until the callback returns.
type Tx struct {
	s      *Store
	ctx    context.Context
	region domain.Region
}

func (t *Tx) Region() domain.Region {
	return t.region
}

func (t *Tx) AddItem(candidate domain.CartLine, qty int) {
	t.s.addItem(t.ctx, t.region, candidate, qty)
}

func (t *Tx) RemoveItem(id string) {
	t.s.removeItem(t.ctx, t.region, id)
}

func (t *Tx) UpdateQuantity(id string, qty int) {
	t.s.updateQuantity(t.ctx, t.region, id, qty)
}

func (t *Tx) Clear() {
	t.s.clear(t.ctx, t.region)
}

// Within activates the region of path, runs fn against that region's cart
// and returns the resulting snapshot, all under the store lock. A switch
// requested by another caller waits until Within returns. fn may be nil.
func (s *Store) Within(ctx context.Context, path string, fn func(tx *Tx)) domain.Snapshot {
	r := region.FromPath(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchTo(ctx, r)

	if fn != nil {
		fn(&Tx{s: s, ctx: ctx, region: r})
	}
	return domain.NewSnapshot(r, s.lines)
}

// ClearRegion empties the cart of r whether or not it is active. An inactive
// region's slot is deleted so it loads empty the next time it is activated.
func (s *Store) ClearRegion(ctx context.Context, r domain.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded && s.active == r {
		s.lines = []domain.CartLine{}
		s.persist(ctx, r)
		return
	}

	if err := s.storage.Delete(ctx, domain.CartKey(r)); err != nil {
		s.logger.Warn("cart slot delete failed",
			zap.String("region", string(r)), zap.Error(err))
	}
}

// Snapshot returns a copy of the active cart with its totals.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(context.Background())
	return domain.NewSnapshot(s.active, s.lines)
}

func (s *Store) TotalItems() int {
	return s.Snapshot().TotalItems
}

func (s *Store) TotalPrice() decimal.Decimal {
	return s.Snapshot().TotalPrice
}

func (s *Store) indexOf(id string) int {
	for i := range s.lines {
		if s.lines[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) remove(id string) {
	if idx := s.indexOf(id); idx >= 0 {
		s.lines = append(s.lines[:idx:idx], s.lines[idx+1:]...)
	}
}

func (s *Store) notify(r domain.Region, id string, available int) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(domain.NewStockNotice(r, id, available))
}

// persist writes the active cart when it still belongs to target and differs
// from what was last written. Must be called with mu held.
func (s *Store) persist(ctx context.Context, target domain.Region) {
	if s.active != target {
		s.logger.Debug("region changed during mutation, skipping write",
			zap.String("target", string(target)),
			zap.String("active", string(s.active)))
		return
	}

	fp := fingerprint(s.active, s.lines)
	if fp == s.lastPersisted {
		return
	}

	data, err := json.Marshal(s.lines)
	if err != nil {
		s.logger.Error("cart encode failed", zap.Error(err))
		return
	}

	if err := s.storage.Set(ctx, domain.CartKey(s.active), data); err != nil {
		s.logger.Warn("cart write failed, keeping in-memory state",
			zap.String("region", string(s.active)), zap.Error(err))
		return
	}
	s.lastPersisted = fp
}

func fingerprint(r domain.Region, lines []domain.CartLine) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(string(r))
	_, _ = h.WriteString("\x00")
	data, err := json.Marshal(lines)
	if err != nil {
		// unencodable lines never match a stored fingerprint
		_, _ = h.WriteString(strconv.Itoa(len(lines)))
		_, _ = h.WriteString(err.Error())
	}
	_, _ = h.Write(data)
	return h.Sum64()
}
