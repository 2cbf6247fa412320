package bus

import (
	"log/slog"
	"sync"
	"time"

	"ragdesk/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based intent bus for in-process communication.
type InMemoryBus struct {
	inbound chan domain.Intent
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.Intent, bufferSize),
		logger:  logger,
	}
}

// Publish blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(intent domain.Intent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- intent:
	default:
		b.logger.Warn("intent bus full, waiting...", "channel", intent.Channel, "action", intent.Action)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- intent:
			b.logger.Info("intent delivered after wait", "channel", intent.Channel)
		case <-timer.C:
			b.logger.Error("intent dropped: bus full for 10s",
				"channel", intent.Channel,
				"action", intent.Action,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Intent {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
