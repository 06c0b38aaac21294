package board

import "sync"

// subscriber receives views on a one-slot channel. A slow reader only ever
// sees the latest view.
type subscriber struct {
	views chan View
}

// Hub fans board views out to subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]bool
	closed      bool
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[*subscriber]bool)}
}

// Register adds a subscriber and returns its channel and a cancel function.
// The channel is closed by cancel, or at once when the hub is closed.
func (h *Hub) Register() (<-chan View, func()) {
	sub := &subscriber{views: make(chan View, 1)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.views)
		return sub.views, func() {}
	}
	h.subscribers[sub] = true
	h.mu.Unlock()

	var once sync.Once
	return sub.views, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.subscribers[sub] {
				delete(h.subscribers, sub)
				close(sub.views)
			}
		})
	}
}

// Broadcast delivers view to every subscriber without blocking, replacing
// any view the subscriber has not read yet.
func (h *Hub) Broadcast(view View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case <-sub.views:
		default:
		}
		select {
		case sub.views <- view:
		default:
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close closes every subscriber channel and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.views)
	}
}
