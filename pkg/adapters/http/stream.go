package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/strata/pkg/domain"
)

// AllBatches subscribes to the events of every request.
const AllBatches = "*"

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// StreamManager fans signal events out to SSE subscribers, keyed by batch id.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan Message]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe(key string) (<-chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 32)
	if _, ok := sm.subscribers[key]; !ok {
		sm.subscribers[key] = make(map[chan Message]struct{})
	}
	sm.subscribers[key][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[key]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, key)
				}
			}
		})
	}
}

// Broadcast sends msg to the subscribers of batchID and of AllBatches.
// Slow subscribers lose messages instead of blocking the engine.
func (sm *StreamManager) Broadcast(batchID string, msg Message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, key := range []string{batchID, AllBatches} {
		for ch := range sm.subscribers[key] {
			select {
			case ch <- msg:
			default:
				sm.logger.Warn("SSE: Client buffer full, dropping message", "batch_id", batchID)
			}
		}
	}
}

// Hooks returns engine hooks that broadcast signal events.
func (sm *StreamManager) Hooks() domain.Hooks {
	emit := func(event string) func(context.Context, *domain.SignalEvent) {
		return func(_ context.Context, e *domain.SignalEvent) {
			data, err := json.Marshal(e)
			if err != nil {
				return
			}
			sm.Broadcast(e.BatchID, Message{Event: event, Data: string(data)})
		}
	}
	return domain.Hooks{
		OnSignalSent:      emit("signal_sent"),
		OnSignalProcessed: emit("signal_processed"),
		OnSignalFailed:    emit("signal_failed"),
	}
}
