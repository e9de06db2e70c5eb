package memory

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// SessionRepo is a map-backed SessionRepository. CreatePairing also clears
// both participants from the queue it was built with.
type SessionRepo struct {
	mu    sync.Mutex
	rows  map[model.ParticipantID]model.Session
	queue *QueueRepo
}

// NewSessionRepo constructs an empty session table bound to queue (which may be nil).
func NewSessionRepo(queue *QueueRepo) *SessionRepo {
	return &SessionRepo{rows: make(map[model.ParticipantID]model.Session), queue: queue}
}

func (r *SessionRepo) CreatePairing(_ context.Context, a, b model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[a.ParticipantID]; ok {
		return errs.ErrAlreadyPaired
	}
	if _, ok := r.rows[b.ParticipantID]; ok {
		return errs.ErrAlreadyPaired
	}
	r.rows[a.ParticipantID] = a
	r.rows[b.ParticipantID] = b

	if r.queue != nil {
		r.queue.mu.Lock()
		r.queue.remove(a.ParticipantID)
		r.queue.remove(b.ParticipantID)
		r.queue.mu.Unlock()
	}
	return nil
}

func (r *SessionRepo) GetPartner(_ context.Context, id model.ParticipantID) (model.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return 0, errs.ErrNotFound
	}
	return s.PartnerID, nil
}

func (r *SessionRepo) Get(_ context.Context, id model.ParticipantID) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return model.Session{}, errs.ErrNotFound
	}
	return s, nil
}

func (r *SessionRepo) EndSession(_ context.Context, id model.ParticipantID) (model.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return 0, errs.ErrNotFound
	}
	delete(r.rows, id)
	delete(r.rows, s.PartnerID)
	return s.PartnerID, nil
}

func (r *SessionRepo) EndPair(_ context.Context, pairID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ended := false
	for id, s := range r.rows {
		if s.PairID == pairID {
			delete(r.rows, id)
			ended = true
		}
	}
	return ended, nil
}

func (r *SessionRepo) SetSecretMode(_ context.Context, id model.ParticipantID, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	s.SecretMode = on
	r.rows[id] = s
	if p, ok := r.rows[s.PartnerID]; ok {
		p.SecretMode = on
		r.rows[s.PartnerID] = p
	}
	return nil
}

func (r *SessionRepo) ListPaired(_ context.Context) (map[model.ParticipantID]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.ParticipantID]struct{}, len(r.rows))
	for id := range r.rows {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *SessionRepo) CountActive(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows) / 2, nil
}
