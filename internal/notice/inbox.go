package notice

import (
	"sync"

	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"go.uber.org/zap"
)

// Inbox keeps the most recent notices of one session until the UI drains them.
type Inbox struct {
	mu      sync.Mutex
	limit   int
	pending []domain.Notice
}

func NewInbox(limit int) *Inbox {
	return &Inbox{limit: limit}
}

func (i *Inbox) Deliver(n domain.Notice) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending = append(i.pending, n)
	if over := len(i.pending) - i.limit; over > 0 {
		i.pending = i.pending[over:]
	}
}

// Drain returns pending notices oldest first and empties the inbox.
func (i *Inbox) Drain() []domain.Notice {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := i.pending
	i.pending = nil
	if out == nil {
		return []domain.Notice{}
	}
	return out
}

// LogSink writes every notice to the logger.
func LogSink(logger *zap.Logger) Sink {
	return SinkFunc(func(n domain.Notice) {
		logger.Info("stock notice",
			zap.String("region", string(n.Region)),
			zap.String("line_id", n.LineID),
			zap.Int("available", n.Available))
	})
}
