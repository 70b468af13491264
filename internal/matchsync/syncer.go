// Package matchsync copies recent Riot matches for linked users into storage.
package matchsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sirupsen/logrus"

	"tfttracker/internal/apperr"
	"tfttracker/internal/data"
	"tfttracker/internal/events"
	"tfttracker/internal/riot"
)

const (
	// DefaultFetchCount is how many recent match ids are requested per user
	DefaultFetchCount = 10

	bloomCapacity  = 200000
	bloomFalseRate = 0.000001
)

// ErrNotLinked is returned when a user has no Riot account attached
var ErrNotLinked = apperr.New(apperr.CodeFailedPrecondition, "Riot account not linked")

// MatchSource is the part of the Riot client the syncer needs
type MatchSource interface {
	GetMatchIDs(ctx context.Context, region, puuid string, count int) ([]string, error)
	GetMatch(ctx context.Context, region, matchID string) (*riot.Match, error)
}

// MatchStore is the part of the store the syncer needs
type MatchStore interface {
	MatchExists(ctx context.Context, matchID, puuid string) (bool, error)
	InsertMatch(ctx context.Context, m *data.Match) (bool, error)
	ListLinkedUsers(ctx context.Context) ([]data.User, error)
}

// Result summarizes one user's sync
type Result struct {
	UserID         int64    `json:"user_id"`
	Fetched        int      `json:"fetched"`
	Stored         int      `json:"stored"`
	Skipped        int      `json:"skipped"`
	Failed         int      `json:"failed"`
	StoredMatchIDs []string `json:"stored_match_ids"`
}

// Syncer pulls match history from Riot into the store.
// Stored (match, player) pairs are remembered in a bloom filter so repeat
// syncs skip the database lookup for matches already handled by this process.
type Syncer struct {
	source MatchSource
	store  MatchStore
	cache  data.Cache
	events events.Publisher
	count  int
	log    logrus.FieldLogger

	seenMu sync.Mutex
	seen   *bloom.BloomFilter
}

// Option configures a Syncer
type Option func(*Syncer)

// WithFetchCount sets how many recent match ids are requested per user
func WithFetchCount(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.count = n
		}
	}
}

// WithCache invalidates the user's cached statistics after new matches land
func WithCache(c data.Cache) Option {
	return func(s *Syncer) {
		s.cache = c
	}
}

// WithPublisher pushes match:stored and sync:done events
func WithPublisher(p events.Publisher) Option {
	return func(s *Syncer) {
		s.events = p
	}
}

// New creates a syncer
func New(source MatchSource, store MatchStore, logger logrus.FieldLogger, opts ...Option) *Syncer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Syncer{
		source: source,
		store:  store,
		events: events.Discard{},
		count:  DefaultFetchCount,
		log:    logger.WithField("component", "sync"),
		seen:   bloom.NewWithEstimates(bloomCapacity, bloomFalseRate),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func seenKey(matchID, puuid string) string {
	return matchID + "|" + puuid
}

func (s *Syncer) hasSeen(key string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.seen.TestString(key)
}

func (s *Syncer) markSeen(key string) {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	s.seen.AddString(key)
}

// Reset forgets every remembered match
func (s *Syncer) Reset() {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	s.seen = bloom.NewWithEstimates(bloomCapacity, bloomFalseRate)
}

// RecentMatchIDs returns the user's latest match ids straight from Riot
func (s *Syncer) RecentMatchIDs(ctx context.Context, u *data.User) ([]string, error) {
	if !u.RiotLinked() {
		return nil, ErrNotLinked
	}
	return s.source.GetMatchIDs(ctx, u.Region, u.PUUID, s.count)
}

// SyncUser stores every recent match of u that is not stored yet.
// A single match that cannot be fetched or parsed is counted as failed
// and does not abort the run.
func (s *Syncer) SyncUser(ctx context.Context, u *data.User) (*Result, error) {
	if !u.RiotLinked() {
		return nil, ErrNotLinked
	}
	log := s.log.WithFields(logrus.Fields{"user_id": u.ID, "region": u.Region})

	ids, err := s.source.GetMatchIDs(ctx, u.Region, u.PUUID, s.count)
	if err != nil {
		return nil, fmt.Errorf("fetch match ids: %w", err)
	}

	res := &Result{UserID: u.ID, Fetched: len(ids), StoredMatchIDs: []string{}}
	// Rows stored before an early return must still reach the stats views
	defer func() {
		if res.Stored == 0 || s.cache == nil {
			return
		}
		if err := s.cache.InvalidateUser(context.WithoutCancel(ctx), u.ID); err != nil {
			log.WithError(err).Warn("cache invalidation failed")
		}
	}()

	for _, matchID := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := seenKey(matchID, u.PUUID)
		if s.hasSeen(key) {
			res.Skipped++
			continue
		}
		exists, err := s.store.MatchExists(ctx, matchID, u.PUUID)
		if err != nil {
			return res, err
		}
		if exists {
			s.markSeen(key)
			res.Skipped++
			continue
		}

		stored, err := s.storeMatch(ctx, u, matchID)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.WithError(err).WithField("match_id", matchID).Warn("match skipped")
			res.Failed++
			continue
		}
		s.markSeen(key)
		if stored == nil {
			res.Skipped++
			continue
		}
		res.Stored++
		res.StoredMatchIDs = append(res.StoredMatchIDs, matchID)
		s.events.Publish(u.ID, events.Event{
			Type:      events.EventMatchStored,
			MatchID:   matchID,
			Placement: stored.Placement,
		})
	}

	s.events.Publish(u.ID, events.Event{Type: events.EventSyncDone, Stored: res.Stored})

	log.WithFields(logrus.Fields{
		"fetched": res.Fetched,
		"stored":  res.Stored,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}).Info("sync complete")
	return res, nil
}

// storeMatch fetches one match and inserts the user's board.
// It returns nil when another writer stored the row first.
func (s *Syncer) storeMatch(ctx context.Context, u *data.User, matchID string) (*data.Match, error) {
	m, err := s.source.GetMatch(ctx, u.Region, matchID)
	if err != nil {
		return nil, err
	}
	player, err := riot.ExtractPlayerData(m, u.PUUID)
	if err != nil {
		return nil, err
	}

	row := &data.Match{
		MatchID:   m.MatchID,
		PUUID:     u.PUUID,
		UserID:    u.ID,
		Placement: player.Placement,
		Level:     player.Level,
		GoldLeft:  player.GoldLeft,
		LastRound: player.LastRound,
		Traits:    player.Traits,
		Units:     player.Units,
		PlayedAt:  m.PlayedAt(),
	}
	inserted, err := s.store.InsertMatch(ctx, row)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return row, nil
}

// SyncAll syncs every linked user in turn.
// Per-user failures are logged and collected; only context cancellation stops the run.
func (s *Syncer) SyncAll(ctx context.Context) ([]Result, error) {
	users, err := s.store.ListLinkedUsers(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(users))
	var errs []error
	for i := range users {
		res, err := s.SyncUser(ctx, &users[i])
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			s.log.WithError(err).WithField("user_id", users[i].ID).Error("user sync failed")
			errs = append(errs, fmt.Errorf("user %d: %w", users[i].ID, err))
		}
	}
	return results, errors.Join(errs...)
}
