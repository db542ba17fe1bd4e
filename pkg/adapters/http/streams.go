package http

import (
	"log/slog"
	"sync"
)

// StreamManager fans graph change messages out to per-flow SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // FlowID -> set of channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for flowID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(flowID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[flowID]; !ok {
		sm.subscribers[flowID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[flowID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[flowID]; ok {
			if _, live := subs[ch]; !live {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, flowID)
			}
		}
	}
}

// Subscribers returns the number of listeners of flowID.
func (sm *StreamManager) Subscribers(flowID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[flowID])
}

// Broadcast sends msg to every subscriber of flowID. Slow clients miss it.
func (sm *StreamManager) Broadcast(flowID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[flowID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping message", "flow_id", flowID)
		}
	}
}
