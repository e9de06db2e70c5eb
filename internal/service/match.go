// Package service contains the matchmaking engine: inbound operations, the immediate
// matching attempt and the background search supervisor.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/anonmatch/internal/crypto"
	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/limiter"
	"github.com/and161185/anonmatch/internal/matcher"
	"github.com/and161185/anonmatch/internal/model"
	"github.com/and161185/anonmatch/internal/notify"
	"github.com/and161185/anonmatch/internal/repository"
)

// MatchService defines the inbound operations of the engine.
type MatchService interface {
	// RequestMatch pairs the participant immediately or queues it and starts a background search.
	RequestMatch(ctx context.Context, id model.ParticipantID, f model.Filters) (MatchResult, error)
	// CancelSearch stops the participant's search and reports whether one was running.
	CancelSearch(ctx context.Context, id model.ParticipantID) (bool, error)
	// EndChat ends the session, or cancels the search, whichever the participant has.
	EndChat(ctx context.Context, id model.ParticipantID) (StopResult, error)
	// RequestNext leaves any session or search and starts a fresh search.
	RequestNext(ctx context.Context, id model.ParticipantID, f model.Filters) (MatchResult, error)
	// SetSecretMode toggles secret mode on the participant's session.
	SetSecretMode(ctx context.Context, id model.ParticipantID, on bool) error
	// IsSecretMode reports the secret mode flag of the participant's session.
	IsSecretMode(ctx context.Context, id model.ParticipantID) (bool, error)
	// GetPartner returns the participant's current partner.
	GetPartner(ctx context.Context, id model.ParticipantID) (model.ParticipantID, error)
	// Stats returns queue and session counters.
	Stats(ctx context.Context) (model.Stats, error)
}

// MatchStatus is the immediate outcome of a match request.
type MatchStatus int

const (
	MatchQueued MatchStatus = iota + 1
	MatchPaired
)

func (s MatchStatus) String() string {
	switch s {
	case MatchQueued:
		return "queued"
	case MatchPaired:
		return "paired"
	}
	return "unknown"
}

// MatchResult describes what RequestMatch did.
type MatchResult struct {
	Status    MatchStatus
	PartnerID model.ParticipantID // set when Paired
	SearchID  uuid.UUID           // set when Queued
}

// StopResult describes what EndChat did.
type StopResult int

const (
	StopIdle StopResult = iota
	StopEnded
	StopCancelled
)

func (s StopResult) String() string {
	switch s {
	case StopEnded:
		return "ended"
	case StopCancelled:
		return "cancelled"
	}
	return "idle"
}

// Deps are the stores and collaborators the engine works against.
type Deps struct {
	Profiles repository.ProfileRepository
	Blocks   repository.BlockRepository
	Queue    repository.QueueRepository
	Sessions repository.SessionRepository
	Notifier notify.Notifier
}

// Options tune the engine. Zero values select defaults.
type Options struct {
	Interval    time.Duration   // delay between background attempts, default 10s
	MaxAttempts int             // background attempts before SearchTimedOut, default 30
	EvictAfter  time.Duration   // queue rows older than this are evicted, default 30m
	Clock       clockwork.Clock // default real clock
	Log         *zap.Logger     // default no-op
	Limiter     limiter.Limiter // optional search rate limit
	IDs         *crypto.Pseudonym
}

const (
	DefaultInterval    = 10 * time.Second
	DefaultMaxAttempts = 30
	DefaultEvictAfter  = 30 * time.Minute
)

type MatchServiceImpl struct {
	deps  Deps
	opts  Options
	clock clockwork.Clock
	log   *zap.Logger
	ids   *crypto.Pseudonym

	// mu serializes eviction, candidate scan + pairing, queue writes and the searches map.
	mu       sync.Mutex
	searches map[model.ParticipantID]*search
	closed   bool

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ MatchService = (*MatchServiceImpl)(nil)

// NewMatchService constructs the engine. Call Close to stop background searches.
func NewMatchService(deps Deps, opts Options) (*MatchServiceImpl, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.EvictAfter <= 0 {
		opts.EvictAfter = DefaultEvictAfter
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.IDs == nil {
		ids, err := crypto.NewPseudonym(nil)
		if err != nil {
			return nil, err
		}
		opts.IDs = ids
	}
	root, cancel := context.WithCancel(context.Background())
	return &MatchServiceImpl{
		deps:     deps,
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Log,
		ids:      opts.IDs,
		searches: make(map[model.ParticipantID]*search),
		root:     root,
		cancel:   cancel,
	}, nil
}

// Close cancels every running search and waits for the supervisors to exit.
// Requests arriving afterwards fail with errs.ErrClosed.
func (s *MatchServiceImpl) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Resume starts supervisors for queue rows that have none, such as rows left behind by a
// previous process. Stale rows are evicted first and their owners get SearchTimedOut.
func (s *MatchServiceImpl) Resume(ctx context.Context) (int, error) {
	s.mu.Lock()
	evicted, err := s.evictLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("evict: %w", err)
	}
	entries, err := s.deps.Queue.List(ctx)
	if err != nil {
		s.mu.Unlock()
		s.notifyTimedOut(ctx, evicted)
		return 0, fmt.Errorf("list queue: %w", err)
	}
	n := 0
	for _, e := range entries {
		if _, ok := s.searches[e.ParticipantID]; ok {
			continue
		}
		if _, err = s.launchLocked(e); err != nil {
			break
		}
		n++
	}
	s.mu.Unlock()
	s.notifyTimedOut(ctx, evicted)
	return n, err
}

// RequestMatch validates the request, tries an immediate match and otherwise queues the
// participant and starts a supervisor. A second request from a searching participant
// replaces the first.
func (s *MatchServiceImpl) RequestMatch(ctx context.Context, id model.ParticipantID, f model.Filters) (MatchResult, error) {
	if err := f.Validate(); err != nil {
		return MatchResult{}, fmt.Errorf("%w: %v", errs.ErrInvalidFilters, err)
	}
	prof, err := s.deps.Profiles.GetProfile(ctx, id)
	if err != nil {
		return MatchResult{}, fmt.Errorf("profile: %w", err)
	}
	if prof.IsBanned {
		return MatchResult{}, errs.ErrBanned
	}
	if s.opts.Limiter != nil {
		ok, retry, err := s.opts.Limiter.Allow(ctx, id)
		if err != nil {
			return MatchResult{}, fmt.Errorf("limiter: %w", err)
		}
		if !ok {
			return MatchResult{}, fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return MatchResult{}, errs.ErrClosed
	}
	if _, err := s.deps.Sessions.GetPartner(ctx, id); err == nil {
		s.mu.Unlock()
		return MatchResult{}, errs.ErrAlreadyInChat
	} else if !errors.Is(err, errs.ErrNotFound) {
		s.mu.Unlock()
		return MatchResult{}, err
	}

	s.dropSearchLocked(id, nil)
	evicted, err := s.evictLocked(ctx)
	if err != nil {
		s.log.Error("evict stale queue entries", zap.Error(err))
	}
	evicted = without(evicted, id)

	p, err := s.matchLocked(ctx, id, f)
	if err != nil && !errors.Is(err, errs.ErrNoCandidate) {
		s.mu.Unlock()
		s.notifyTimedOut(ctx, evicted)
		return MatchResult{}, err
	}
	if err == nil {
		s.mu.Unlock()
		s.notifyTimedOut(ctx, evicted)
		if err := s.announce(context.WithoutCancel(ctx), id, p); err != nil {
			return MatchResult{}, err
		}
		return MatchResult{Status: MatchPaired, PartnerID: p.partner}, nil
	}

	entry := model.QueueEntry{ParticipantID: id, Filters: f, IsPro: prof.IsPro, EnqueuedAt: s.clock.Now()}
	h, err := s.startSearchLocked(ctx, entry)
	s.mu.Unlock()
	s.notifyTimedOut(ctx, evicted)
	if err != nil {
		return MatchResult{}, fmt.Errorf("enqueue: %w", err)
	}
	return MatchResult{Status: MatchQueued, SearchID: h.id}, nil
}

// CancelSearch removes the participant from the queue and stops its supervisor.
// The participant receives SearchCancelled when something was cancelled.
func (s *MatchServiceImpl) CancelSearch(ctx context.Context, id model.ParticipantID) (bool, error) {
	s.mu.Lock()
	ok, err := s.cancelSearchLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if ok {
		_ = s.notify(ctx, id, model.Simple(model.EventSearchCancelled, s.clock.Now()))
	}
	return ok, nil
}

// EndChat ends the participant's session (requester gets ChatEnded, partner gets
// PartnerLeft{stop}); otherwise cancels its search; otherwise does nothing.
func (s *MatchServiceImpl) EndChat(ctx context.Context, id model.ParticipantID) (StopResult, error) {
	s.mu.Lock()
	partner, err := s.deps.Sessions.EndSession(ctx, id)
	if err == nil {
		s.mu.Unlock()
		now := s.clock.Now()
		s.log.Info("chat ended", s.ids.Field("participant", id), s.ids.Field("partner", partner))
		_ = s.notify(ctx, id, model.Simple(model.EventChatEnded, now))
		_ = s.notify(ctx, partner, model.PartnerLeft(model.LeaveStop, now))
		return StopEnded, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		s.mu.Unlock()
		return StopIdle, err
	}
	cancelled, err := s.cancelSearchLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return StopIdle, err
	}
	if !cancelled {
		return StopIdle, nil
	}
	_ = s.notify(ctx, id, model.Simple(model.EventSearchCancelled, s.clock.Now()))
	return StopCancelled, nil
}

// RequestNext ends any session (partner gets PartnerLeft{next}) and silently drops any
// search, then starts a new match request with f.
func (s *MatchServiceImpl) RequestNext(ctx context.Context, id model.ParticipantID, f model.Filters) (MatchResult, error) {
	if err := f.Validate(); err != nil {
		return MatchResult{}, fmt.Errorf("%w: %v", errs.ErrInvalidFilters, err)
	}

	s.mu.Lock()
	partner, err := s.deps.Sessions.EndSession(ctx, id)
	left := err == nil
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.mu.Unlock()
		return MatchResult{}, err
	}
	if _, err := s.cancelSearchLocked(ctx, id); err != nil {
		s.mu.Unlock()
		return MatchResult{}, err
	}
	s.mu.Unlock()

	if left {
		s.log.Info("chat left for next", s.ids.Field("participant", id), s.ids.Field("partner", partner))
		_ = s.notify(ctx, partner, model.PartnerLeft(model.LeaveNext, s.clock.Now()))
	}
	return s.RequestMatch(ctx, id, f)
}

// SetSecretMode sets the flag on both rows of the participant's session.
func (s *MatchServiceImpl) SetSecretMode(ctx context.Context, id model.ParticipantID, on bool) error {
	err := s.deps.Sessions.SetSecretMode(ctx, id, on)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrNotInChat
	}
	return err
}

// IsSecretMode reads the flag from the participant's session.
func (s *MatchServiceImpl) IsSecretMode(ctx context.Context, id model.ParticipantID) (bool, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return false, errs.ErrNotInChat
	}
	if err != nil {
		return false, err
	}
	return sess.SecretMode, nil
}

// GetPartner returns errs.ErrNotInChat when the participant has no session.
func (s *MatchServiceImpl) GetPartner(ctx context.Context, id model.ParticipantID) (model.ParticipantID, error) {
	p, err := s.deps.Sessions.GetPartner(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return 0, errs.ErrNotInChat
	}
	return p, err
}

func (s *MatchServiceImpl) Stats(ctx context.Context) (model.Stats, error) {
	q, err := s.deps.Queue.Stats(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	n, err := s.deps.Sessions.CountActive(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	return model.Stats{Queue: q, ActiveChats: n}, nil
}

// pairing is a committed session plus the partner's interrupted search, if any.
type pairing struct {
	partner       model.ParticipantID
	pairID        uuid.UUID
	partnerSearch *search
}

// matchLocked runs one matching attempt and commits the pairing on a hit. It returns
// errs.ErrNoCandidate when the search should go on, including a lost CreatePairing race.
func (s *MatchServiceImpl) matchLocked(ctx context.Context, id model.ParticipantID, f model.Filters) (pairing, error) {
	profiles, err := s.deps.Profiles.ListEligible(ctx, id)
	if err != nil {
		return pairing{}, fmt.Errorf("list profiles: %w", err)
	}
	paired, err := s.deps.Sessions.ListPaired(ctx)
	if err != nil {
		return pairing{}, fmt.Errorf("list sessions: %w", err)
	}
	blocks, err := s.deps.Blocks.Relations(ctx, id)
	if err != nil {
		return pairing{}, fmt.Errorf("block relations: %w", err)
	}

	partner, ok := matcher.FindCandidate(id, f, matcher.Pool{Profiles: profiles, Paired: paired, Blocks: blocks})
	if !ok {
		return pairing{}, errs.ErrNoCandidate
	}
	// blocks are written outside the engine; recheck the chosen pair right before commit
	blocked, err := s.blockedEitherWay(ctx, id, partner)
	if err != nil {
		return pairing{}, fmt.Errorf("block check: %w", err)
	}
	if blocked {
		s.log.Info("candidate blocked since snapshot", s.ids.Field("participant", id), s.ids.Field("partner", partner))
		return pairing{}, errs.ErrNoCandidate
	}

	pairID, err := uuid.NewV4()
	if err != nil {
		return pairing{}, err
	}
	now := s.clock.Now()
	a := model.Session{ParticipantID: id, PartnerID: partner, PairID: pairID, StartedAt: now}
	b := model.Session{ParticipantID: partner, PartnerID: id, PairID: pairID, StartedAt: now}
	if err := s.deps.Sessions.CreatePairing(ctx, a, b); err != nil {
		if errors.Is(err, errs.ErrAlreadyPaired) {
			s.log.Error("pairing lost a race", s.ids.Field("participant", id), s.ids.Field("partner", partner))
			return pairing{}, errs.ErrNoCandidate
		}
		return pairing{}, fmt.Errorf("create pairing: %w", err)
	}

	p := pairing{partner: partner, pairID: pairID}
	if h := s.searches[partner]; h != nil {
		delete(s.searches, partner)
		h.cancel(nil)
		p.partnerSearch = h
	}
	s.log.Info("paired", s.ids.Field("participant", id), s.ids.Field("partner", partner), zap.Stringer("pair", pairID))
	return p, nil
}

func (s *MatchServiceImpl) blockedEitherWay(ctx context.Context, a, b model.ParticipantID) (bool, error) {
	for _, pair := range [][2]model.ParticipantID{{a, b}, {b, a}} {
		blocked, err := s.deps.Blocks.IsBlocked(ctx, pair[0], pair[1])
		if err != nil || blocked {
			return blocked, err
		}
	}
	return false, nil
}

// announce notifies requester then partner. If either cannot be reached the pairing is
// rolled back and the requester gets DeliveryFailed. A partner whose search was
// interrupted and who was never told about the pairing gets its search back.
// Only this pairing is rolled back: when a slow delivery returns after the pair was
// already ended, a newer session of either side is left alone and nobody is notified.
func (s *MatchServiceImpl) announce(ctx context.Context, id model.ParticipantID, p pairing) error {
	now := s.clock.Now()
	reqErr := s.notify(ctx, id, model.PartnerFound(p.partner, now))
	var partnerErr error
	if reqErr == nil {
		partnerErr = s.notify(ctx, p.partner, model.PartnerFound(id, now))
		if partnerErr == nil {
			return nil
		}
	}

	deliveryErr := fmt.Errorf("notify partner: %w", partnerErr)
	if reqErr != nil {
		deliveryErr = fmt.Errorf("notify requester: %w", reqErr)
	}

	s.mu.Lock()
	ended, err := s.deps.Sessions.EndPair(ctx, p.pairID)
	if err != nil {
		s.log.Error("roll back pairing", s.ids.Field("participant", id), zap.Stringer("pair", p.pairID), zap.Error(err))
	} else if !ended {
		s.mu.Unlock()
		s.log.Info("pairing already ended, nothing to roll back", s.ids.Field("participant", id), zap.Stringer("pair", p.pairID))
		return deliveryErr
	}
	if reqErr != nil && p.partnerSearch != nil {
		if _, err := s.startSearchLocked(ctx, p.partnerSearch.entry); err != nil {
			s.log.Error("restore partner search", s.ids.Field("participant", p.partner), zap.Error(err))
		}
	}
	s.mu.Unlock()

	_ = s.notify(ctx, id, model.Simple(model.EventDeliveryFailed, s.clock.Now()))
	return deliveryErr
}

// evictLocked deletes stale queue rows and silently stops their supervisors.
// The caller owes each returned id one SearchTimedOut.
func (s *MatchServiceImpl) evictLocked(ctx context.Context) ([]model.ParticipantID, error) {
	ids, err := s.deps.Queue.EvictOlderThan(ctx, s.clock.Now().Add(-s.opts.EvictAfter))
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.dropSearchLocked(id, errs.ErrQueueEvicted)
	}
	if len(ids) > 0 {
		s.log.Info("evicted stale queue entries", zap.Int("count", len(ids)))
	}
	return ids, nil
}

// cancelSearchLocked stops the supervisor and removes the queue row.
func (s *MatchServiceImpl) cancelSearchLocked(ctx context.Context, id model.ParticipantID) (bool, error) {
	had := s.dropSearchLocked(id, nil)
	removed, err := s.deps.Queue.Dequeue(ctx, id)
	if err != nil {
		return had, err
	}
	return had || removed, nil
}

func (s *MatchServiceImpl) notifyTimedOut(ctx context.Context, ids []model.ParticipantID) {
	for _, id := range ids {
		_ = s.notify(ctx, id, model.Simple(model.EventSearchTimedOut, s.clock.Now()))
	}
}

func (s *MatchServiceImpl) notify(ctx context.Context, to model.ParticipantID, ev model.Event) error {
	if err := s.deps.Notifier.Notify(ctx, to, ev); err != nil {
		s.log.Warn("notify failed", s.ids.Field("to", to), zap.String("kind", string(ev.Kind)), zap.Error(err))
		if !errors.Is(err, errs.ErrDeliveryFailed) {
			err = fmt.Errorf("%w: %v", errs.ErrDeliveryFailed, err)
		}
		return err
	}
	return nil
}

func without(ids []model.ParticipantID, id model.ParticipantID) []model.ParticipantID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
