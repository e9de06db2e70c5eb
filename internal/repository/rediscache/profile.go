// Package rediscache provides a read-through Redis cache in front of a profile store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/anonmatch/internal/model"
	"github.com/and161185/anonmatch/internal/repository"
)

// DefaultTTL bounds how stale a cached pro or ban flag can be.
const DefaultTTL = 30 * time.Second

const keyPrefix = "anonmatch:profile:"

// ProfileRepo caches GetProfile lookups. ListEligible always hits the backing store,
// since the matcher needs the full current pool.
type ProfileRepo struct {
	next   repository.ProfileRepository
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

var _ repository.ProfileRepository = (*ProfileRepo)(nil)

// New wraps next with a cache. A non-positive ttl selects DefaultTTL.
func New(next repository.ProfileRepository, client redis.UniversalClient, ttl time.Duration, log *zap.Logger) *ProfileRepo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileRepo{next: next, client: client, ttl: ttl, log: log}
}

type cachedProfile struct {
	Gender   string   `json:"g,omitempty"`
	Age      *int     `json:"a,omitempty"`
	Hobbies  []string `json:"h,omitempty"`
	IsPro    bool     `json:"p,omitempty"`
	IsBanned bool     `json:"b,omitempty"`
}

func key(id model.ParticipantID) string { return keyPrefix + strconv.FormatInt(id, 10) }

// GetProfile returns the cached profile or loads and caches it.
// Redis failures degrade to a direct read.
func (r *ProfileRepo) GetProfile(ctx context.Context, id model.ParticipantID) (model.Profile, error) {
	raw, err := r.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var c cachedProfile
		if err := json.Unmarshal(raw, &c); err == nil {
			return model.Profile{
				ID: id, Gender: model.Gender(c.Gender), Age: c.Age,
				Hobbies: c.Hobbies, IsPro: c.IsPro, IsBanned: c.IsBanned,
			}, nil
		}
		r.log.Warn("profile cache: corrupt entry", zap.String("key", key(id)))
	case !errors.Is(err, redis.Nil):
		r.log.Warn("profile cache: get failed", zap.Error(err))
	}

	p, err := r.next.GetProfile(ctx, id)
	if err != nil {
		return model.Profile{}, err
	}
	raw, err = json.Marshal(cachedProfile{
		Gender: string(p.Gender), Age: p.Age, Hobbies: p.Hobbies, IsPro: p.IsPro, IsBanned: p.IsBanned,
	})
	if err == nil {
		err = r.client.Set(ctx, key(id), raw, r.ttl).Err()
	}
	if err != nil {
		r.log.Warn("profile cache: set failed", zap.Error(err))
	}
	return p, nil
}

// ListEligible delegates to the backing store.
func (r *ProfileRepo) ListEligible(ctx context.Context, except model.ParticipantID) ([]model.Profile, error) {
	return r.next.ListEligible(ctx, except)
}
