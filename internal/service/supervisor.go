package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// search is the handle of one background search. The handle stored in
// MatchServiceImpl.searches is the current one; a supervisor whose handle was
// replaced or removed exits without notifying anyone. The cancel cause tells
// an eviction (errs.ErrQueueEvicted) from a plain cancel.
type search struct {
	id     uuid.UUID
	entry  model.QueueEntry
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// startSearchLocked enqueues entry and launches its supervisor.
func (s *MatchServiceImpl) startSearchLocked(ctx context.Context, entry model.QueueEntry) (*search, error) {
	if s.closed {
		return nil, errs.ErrClosed
	}
	if err := s.deps.Queue.Enqueue(ctx, entry); err != nil {
		return nil, err
	}
	return s.launchLocked(entry)
}

// launchLocked starts a supervisor for an entry that is already queued.
func (s *MatchServiceImpl) launchLocked(entry model.QueueEntry) (*search, error) {
	if s.closed {
		return nil, errs.ErrClosed
	}
	sid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancelCause(s.root)
	h := &search{id: sid, entry: entry, ctx: sctx, cancel: cancel}
	s.searches[entry.ParticipantID] = h

	s.wg.Add(1)
	go s.supervise(h)

	s.log.Info("search started", s.ids.Field("participant", entry.ParticipantID), zap.Stringer("search", sid))
	return h, nil
}

// dropSearchLocked removes and cancels the participant's current search handle.
func (s *MatchServiceImpl) dropSearchLocked(id model.ParticipantID, cause error) bool {
	h, ok := s.searches[id]
	if !ok {
		return false
	}
	delete(s.searches, id)
	h.cancel(cause)
	return true
}

func (s *MatchServiceImpl) current(h *search) bool {
	return s.searches[h.entry.ParticipantID] == h
}

// supervise retries matching every interval until the search is resolved, cancelled
// or out of attempts.
func (s *MatchServiceImpl) supervise(h *search) {
	defer s.wg.Done()
	defer h.cancel(nil)

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		select {
		case <-h.ctx.Done():
			if errors.Is(context.Cause(h.ctx), errs.ErrQueueEvicted) {
				s.log.Debug("search evicted", s.ids.Field("participant", h.entry.ParticipantID), zap.Stringer("search", h.id))
			}
			return
		case <-s.clock.After(s.opts.Interval):
		}
		if s.tick(h, attempt) {
			return
		}
	}
	s.expire(h)
}

// tick runs one attempt and reports whether the search is over.
func (s *MatchServiceImpl) tick(h *search, attempt int) bool {
	id := h.entry.ParticipantID
	log := s.log.With(s.ids.Field("participant", id), zap.Stringer("search", h.id), zap.Int("attempt", attempt))
	nctx := context.WithoutCancel(h.ctx)

	s.mu.Lock()
	if !s.current(h) {
		s.mu.Unlock()
		return true
	}
	if _, err := s.deps.Sessions.GetPartner(h.ctx, id); err == nil {
		delete(s.searches, id)
		s.mu.Unlock()
		log.Debug("already paired elsewhere")
		return true
	} else if !errors.Is(err, errs.ErrNotFound) {
		s.mu.Unlock()
		log.Warn("session lookup failed, retrying", zap.Error(err))
		return false
	}
	// another instance may have cancelled the search in the shared queue
	if _, err := s.deps.Queue.Get(h.ctx, id); errors.Is(err, errs.ErrNotFound) {
		delete(s.searches, id)
		s.mu.Unlock()
		log.Debug("queue entry removed elsewhere")
		return true
	} else if err != nil {
		s.mu.Unlock()
		log.Warn("queue lookup failed, retrying", zap.Error(err))
		return false
	}

	evicted, err := s.evictLocked(h.ctx)
	if err != nil {
		log.Warn("eviction failed", zap.Error(err))
	}
	if !s.current(h) {
		s.mu.Unlock()
		s.notifyTimedOut(nctx, evicted)
		return true
	}

	p, err := s.matchLocked(h.ctx, id, h.entry.Filters)
	if err == nil {
		delete(s.searches, id)
	}
	s.mu.Unlock()
	s.notifyTimedOut(nctx, evicted)

	switch {
	case errors.Is(err, errs.ErrNoCandidate):
		return false
	case err != nil:
		log.Warn("matching attempt failed, retrying", zap.Error(err))
		return false
	}
	// the pairing is committed; deliver even if the search was cancelled meanwhile
	if err := s.announce(nctx, id, p); err != nil {
		log.Warn("pairing rolled back", zap.Error(err))
	}
	return true
}

// expire ends a search that ran out of attempts.
func (s *MatchServiceImpl) expire(h *search) {
	id := h.entry.ParticipantID

	s.mu.Lock()
	if !s.current(h) {
		s.mu.Unlock()
		return
	}
	delete(s.searches, id)
	if _, err := s.deps.Queue.Dequeue(h.ctx, id); err != nil {
		s.log.Error("dequeue timed out search", s.ids.Field("participant", id), zap.Error(err))
	}
	s.mu.Unlock()

	s.log.Info("search timed out", s.ids.Field("participant", id), zap.Stringer("search", h.id))
	_ = s.notify(context.WithoutCancel(h.ctx), id, model.Simple(model.EventSearchTimedOut, s.clock.Now()))
}
