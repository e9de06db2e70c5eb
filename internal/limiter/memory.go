package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/and161185/anonmatch/internal/model"
)

// Memory is an in-process fixed-window limiter.
type Memory struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	window time.Duration
	max    int
	state  map[model.ParticipantID]window
}

type window struct {
	start time.Time
	count int
}

// NewMemory constructs an in-process limiter. A nil clock uses the real one.
func NewMemory(clock clockwork.Clock, win time.Duration, max int) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{clock: clock, window: win, max: max, state: make(map[model.ParticipantID]window)}
}

func (m *Memory) Allow(_ context.Context, id model.ParticipantID) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w := m.state[id]
	if w.count == 0 || now.Sub(w.start) > m.window {
		w = window{start: now}
	}
	w.count++
	m.state[id] = w
	if w.count > m.max {
		return false, w.start.Add(m.window).Sub(now), nil
	}
	return true, 0, nil
}
