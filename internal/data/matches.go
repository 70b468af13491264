package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"tfttracker/internal/stats"
)

// DefaultMatchLimit bounds ListMatches when no limit is given
const DefaultMatchLimit = 20

// Match is one player's stored result for a Riot match
type Match struct {
	ID        int64         `json:"-"`
	MatchID   string        `json:"match_id"`
	PUUID     string        `json:"-"`
	UserID    int64         `json:"-"`
	Placement int           `json:"placement"`
	Level     int           `json:"level"`
	GoldLeft  int           `json:"gold_left"`
	LastRound int           `json:"last_round"`
	Traits    []stats.Trait `json:"traits"`
	Units     []stats.Unit  `json:"units"`
	PlayedAt  time.Time     `json:"played_at"`

	// corrupt marks a row whose traits or units column could not be decoded
	corrupt bool
}

// Record converts to an aggregation record.
// ok is false for rows whose placement is out of range or whose board
// could not be decoded.
func (m *Match) Record() (stats.MatchRecord, bool) {
	if m.corrupt || m.Placement < 1 || m.Placement > 8 {
		return stats.MatchRecord{}, false
	}
	return stats.MatchRecord{Placement: m.Placement, Traits: m.Traits, Units: m.Units}, true
}

const matchColumns = `id, match_id, puuid, user_id, placement, level, gold_left, last_round, traits, units, played_at`

func scanMatch(row rowScanner) (*Match, error) {
	var (
		m                     Match
		traitsJSON, unitsJSON string
		playedAt              int64
	)
	err := row.Scan(&m.ID, &m.MatchID, &m.PUUID, &m.UserID, &m.Placement, &m.Level,
		&m.GoldLeft, &m.LastRound, &traitsJSON, &unitsJSON, &playedAt)
	if err != nil {
		return nil, err
	}
	m.PlayedAt = fromMillis(playedAt)

	m.Traits = []stats.Trait{}
	m.Units = []stats.Unit{}
	if traitsJSON != "" {
		var traits []stats.Trait
		if err := json.Unmarshal([]byte(traitsJSON), &traits); err != nil {
			m.corrupt = true
		} else if traits != nil {
			m.Traits = traits
		}
	}
	if unitsJSON != "" {
		var units []stats.Unit
		if err := json.Unmarshal([]byte(unitsJSON), &units); err != nil {
			m.corrupt = true
		} else if units != nil {
			m.Units = units
		}
	}
	return &m, nil
}

func (s *Store) warnCorrupt(m *Match) {
	if m.corrupt {
		s.log.WithFields(logrus.Fields{"match_id": m.MatchID, "user_id": m.UserID}).
			Warn("stored match has an undecodable board, excluded from stats")
	}
}

// MatchExists reports whether the match is already stored for puuid
func (s *Store) MatchExists(ctx context.Context, matchID, puuid string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM matches WHERE match_id = ? AND puuid = ?`, matchID, puuid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check match: %w", err)
	}
	return true, nil
}

// InsertMatch stores the match unless (match_id, puuid) is already present.
// It reports whether a row was written.
func (s *Store) InsertMatch(ctx context.Context, m *Match) (bool, error) {
	traits := m.Traits
	if traits == nil {
		traits = []stats.Trait{}
	}
	units := m.Units
	if units == nil {
		units = []stats.Unit{}
	}
	traitsJSON, err := json.Marshal(traits)
	if err != nil {
		return false, fmt.Errorf("failed to marshal traits: %w", err)
	}
	unitsJSON, err := json.Marshal(units)
	if err != nil {
		return false, fmt.Errorf("failed to marshal units: %w", err)
	}

	res, err := s.exec(ctx, `
		INSERT INTO matches (match_id, puuid, user_id, placement, level, gold_left, last_round, traits, units, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id, puuid) DO NOTHING
	`, m.MatchID, m.PUUID, m.UserID, m.Placement, m.Level, m.GoldLeft, m.LastRound,
		string(traitsJSON), string(unitsJSON), toMillis(m.PlayedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// ListMatches returns the user's stored matches for their linked puuid,
// newest first. Rows of a previously linked account are not returned.
// limit <= 0 returns every match.
func (s *Store) ListMatches(ctx context.Context, userID int64, puuid string, limit int) ([]Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches WHERE user_id = ? AND puuid = ? ORDER BY played_at DESC, id DESC`
	args := []any{userID, puuid}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		s.warnCorrupt(m)
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// GetMatch returns one of the user's stored matches for their linked puuid
func (s *Store) GetMatch(ctx context.Context, userID int64, puuid, matchID string) (*Match, error) {
	row := s.queryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE user_id = ? AND puuid = ? AND match_id = ?`,
		userID, puuid, matchID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	s.warnCorrupt(m)
	return m, nil
}

// MatchRecords loads every stored match for the user's linked puuid as
// aggregation records, dropping rows Record rejects
func (s *Store) MatchRecords(ctx context.Context, userID int64, puuid string) ([]stats.MatchRecord, error) {
	matches, err := s.ListMatches(ctx, userID, puuid, 0)
	if err != nil {
		return nil, err
	}
	records := make([]stats.MatchRecord, 0, len(matches))
	for i := range matches {
		if rec, ok := matches[i].Record(); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}
