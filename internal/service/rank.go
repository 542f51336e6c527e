package service

import (
	"context"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/cache"
	"lootcase-api/internal/repository"
)

// RankLookup resolves leaderboard positions on a best-effort basis.
type RankLookup struct {
	players repository.PlayerRepository
	cache   cache.Cache
	ttl     time.Duration
}

// NewRankLookup creates a rank lookup. A zero ttl disables caching.
func NewRankLookup(players repository.PlayerRepository, c cache.Cache, ttl time.Duration) *RankLookup {
	return &RankLookup{players: players, cache: c, ttl: ttl}
}

func rankKey(userID string) string { return "rank:" + userID }

// Lookup returns the player's rank, or nil when it cannot be determined.
func (r *RankLookup) Lookup(ctx context.Context, userID string) *int64 {
	if r == nil {
		return nil
	}
	load := func() ([]byte, error) {
		rank, err := r.players.GetRank(ctx, userID)
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(rank, 10)), nil
	}

	var (
		raw []byte
		err error
	)
	if r.cache == nil || r.ttl <= 0 {
		raw, err = load()
	} else {
		raw, err = r.cache.GetOrSet(ctx, rankKey(userID), r.ttl, load)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"component": "rank",
			"user_id":   userID,
		}).WithError(err).Warn("Rank lookup failed")
		return nil
	}

	rank, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil
	}
	return &rank
}

// Invalidate drops the cached rank after a balance change.
func (r *RankLookup) Invalidate(ctx context.Context, userID string) {
	if r == nil || r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, rankKey(userID))
}
