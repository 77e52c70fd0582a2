// Package notice delivers "only N available" notices off the cart mutation
// path. The cart store hands a notice to a Dispatcher and returns; a
// background goroutine fans it out to the sinks afterwards.
package notice

import (
	"sync"

	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"go.uber.org/zap"
)

const DefaultBuffer = 32

// Sink receives delivered notices
type Sink interface {
	Deliver(n domain.Notice)
}

type SinkFunc func(n domain.Notice)

func (f SinkFunc) Deliver(n domain.Notice) { f(n) }

type Dispatcher struct {
	mu     sync.RWMutex
	closed bool
	queue  chan domain.Notice
	sinks  []Sink
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, buffer int, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		queue:  make(chan domain.Notice, buffer),
		sinks:  sinks,
		logger: logger,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		for _, s := range d.sinks {
			s.Deliver(n)
		}
	}
}

// Notify enqueues n without blocking. Notices are dropped when the queue is
// full or the dispatcher is closed.
func (d *Dispatcher) Notify(n domain.Notice) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notice queue full, dropping notice",
			zap.String("region", string(n.Region)),
			zap.String("line_id", n.LineID))
	}
}

// Close stops accepting notices and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
