package stats

import (
	"math"
	"slices"
	"strings"
)

// Aggregator derives composition and leaderboard views from match records.
// It holds no state between calls and never mutates its input.
type Aggregator struct {
	normalizer Normalizer
}

// New creates an aggregator that normalizes trait names with n
func New(n Normalizer) *Aggregator {
	return &Aggregator{normalizer: n}
}

// CompositionsByUnits groups matches by the sorted set of units fielded.
// Buckets are returned in order of first occurrence.
func (a *Aggregator) CompositionsByUnits(matches []MatchRecord) []CompositionStats {
	buckets := newBucketSet()
	for _, m := range matches {
		buckets.add(UnitSignature(m), m)
	}
	return buckets.results()
}

// CompositionsByTraits groups matches by their dominant traits.
// Matches without an active trait are skipped.
func (a *Aggregator) CompositionsByTraits(matches []MatchRecord) []CompositionStats {
	buckets := newBucketSet()
	for _, m := range matches {
		key, ok := a.DominantTraitSignature(m)
		if !ok {
			continue
		}
		buckets.add(key, m)
	}
	return buckets.results()
}

// TopUnits ranks units by how often they were fielded
func (a *Aggregator) TopUnits(matches []MatchRecord) []UnitStats {
	c := newCounter()
	for _, m := range matches {
		win := m.IsWin()
		for _, u := range m.Units {
			c.add(u.CharacterID, win)
		}
	}

	top := c.top(LeaderboardSize)
	result := make([]UnitStats, 0, len(top))
	for _, t := range top {
		result = append(result, UnitStats{
			CharacterID: t.key,
			Count:       t.count,
			WinRate:     percent(t.wins, t.count),
		})
	}
	return result
}

// TopTraits ranks traits by how often they were active.
// Every active trait counts, not only the dominant one.
func (a *Aggregator) TopTraits(matches []MatchRecord) []TraitStats {
	c := newCounter()
	for _, m := range matches {
		win := m.IsWin()
		for _, t := range m.Traits {
			if t.TierCurrent <= 0 {
				continue
			}
			c.add(a.normalizer.TraitName(t.Name), win)
		}
	}

	top := c.top(LeaderboardSize)
	result := make([]TraitStats, 0, len(top))
	for _, t := range top {
		result = append(result, TraitStats{
			Name:    t.key,
			Count:   t.count,
			WinRate: percent(t.wins, t.count),
		})
	}
	return result
}

// UnitSignature returns the sorted, comma-joined distinct unit ids of a match.
// A second copy of a unit does not change the composition.
func UnitSignature(m MatchRecord) string {
	ids := make([]string, 0, len(m.Units))
	for _, u := range m.Units {
		ids = append(ids, u.CharacterID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return strings.Join(ids, ", ")
}

// DominantTraitSignature returns the space-joined normalized names of the
// traits sharing the highest active tier. ok is false when no trait is active.
func (a *Aggregator) DominantTraitSignature(m MatchRecord) (string, bool) {
	maxTier := 0
	for _, t := range m.Traits {
		if t.TierCurrent > maxTier {
			maxTier = t.TierCurrent
		}
	}
	if maxTier == 0 {
		return "", false
	}

	var names []string
	for _, t := range m.Traits {
		if t.TierCurrent == maxTier {
			names = append(names, a.normalizer.TraitName(t.Name))
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)
	return strings.Join(names, " "), true
}

// SortByGames returns a copy of stats ordered by games played, most first.
// Ties keep their original relative order.
func SortByGames(stats []CompositionStats) []CompositionStats {
	sorted := slices.Clone(stats)
	slices.SortStableFunc(sorted, func(x, y CompositionStats) int {
		return y.GamesPlayed - x.GamesPlayed
	})
	return sorted
}

// bucket accumulates one composition's running totals
type bucket struct {
	games        int
	wins         int
	placementSum int
}

// bucketSet keeps buckets keyed by composition in first-seen order
type bucketSet struct {
	order   []string
	buckets map[string]*bucket
}

func newBucketSet() *bucketSet {
	return &bucketSet{buckets: make(map[string]*bucket)}
}

func (s *bucketSet) add(key string, m MatchRecord) {
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
		s.order = append(s.order, key)
	}
	b.games++
	if m.IsWin() {
		b.wins++
	}
	b.placementSum += m.Placement
}

func (s *bucketSet) results() []CompositionStats {
	result := make([]CompositionStats, 0, len(s.order))
	for _, key := range s.order {
		b := s.buckets[key]
		cs := CompositionStats{
			Composition: key,
			GamesPlayed: b.games,
			Wins:        b.wins,
			WinRate:     percent(b.wins, b.games),
		}
		if b.games > 0 {
			cs.AvgPlacement = round2(float64(b.placementSum) / float64(b.games))
		}
		result = append(result, cs)
	}
	return result
}

type tally struct {
	key   string
	count int
	wins  int
}

// counter is a frequency map that remembers first-insertion order
type counter struct {
	order []*tally
	index map[string]*tally
}

func newCounter() *counter {
	return &counter{index: make(map[string]*tally)}
}

func (c *counter) add(key string, win bool) {
	t, ok := c.index[key]
	if !ok {
		t = &tally{key: key}
		c.index[key] = t
		c.order = append(c.order, t)
	}
	t.count++
	if win {
		t.wins++
	}
}

// top returns the n most frequent keys; ties keep insertion order
func (c *counter) top(n int) []tally {
	ranked := make([]tally, 0, len(c.order))
	for _, t := range c.order {
		ranked = append(ranked, *t)
	}
	slices.SortStableFunc(ranked, func(x, y tally) int {
		return y.count - x.count
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// percent returns part/total as a percentage rounded to 2 decimals
func percent(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
