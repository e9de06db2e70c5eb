package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// Hub fans events out to in-process subscribers, one per participant. It backs the
// gRPC event stream. A participant without a subscriber, or whose buffer is full,
// is unreachable.
type Hub struct {
	mu   sync.Mutex
	buf  int
	subs map[model.ParticipantID]chan model.Event
}

// NewHub constructs a hub with per-subscriber buffers of size buf (minimum 1).
func NewHub(buf int) *Hub {
	if buf < 1 {
		buf = 1
	}
	return &Hub{buf: buf, subs: make(map[model.ParticipantID]chan model.Event)}
}

// Subscribe registers the participant and returns its event channel and an unsubscribe
// func. A newer subscription replaces (and closes) an older one.
func (h *Hub) Subscribe(id model.ParticipantID) (<-chan model.Event, func()) {
	ch := make(chan model.Event, h.buf)

	h.mu.Lock()
	if old, ok := h.subs[id]; ok {
		close(old)
	}
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.subs[id]; ok && cur == ch {
			delete(h.subs, id)
			close(ch)
		}
	}
}

func (h *Hub) Notify(_ context.Context, to model.ParticipantID, ev model.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subs[to]
	if !ok {
		return fmt.Errorf("%w: no subscriber", errs.ErrDeliveryFailed)
	}
	select {
	case ch <- ev:
		return nil
	default:
		return fmt.Errorf("%w: subscriber is not draining", errs.ErrDeliveryFailed)
	}
}
