package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// Game is a manually logged result
type Game struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Composition string    `json:"composition"`
	Victory     bool      `json:"victory"`
	Timestamp   time.Time `json:"timestamp"`
}

// GameStats summarizes a user's manual games for one composition
type GameStats struct {
	Composition string  `json:"composition"`
	GamesPlayed int     `json:"games_played"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"`
}

func scanGame(row rowScanner) (*Game, error) {
	var (
		g  Game
		ts int64
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Composition, &g.Victory, &ts); err != nil {
		return nil, err
	}
	g.Timestamp = fromMillis(ts)
	return &g, nil
}

// CreateGame logs a game for a user
func (s *Store) CreateGame(ctx context.Context, userID int64, composition string, victory bool) (*Game, error) {
	g := &Game{
		UserID:      userID,
		Composition: composition,
		Victory:     victory,
		Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
	}
	err := s.queryRow(ctx, `
		INSERT INTO games (user_id, composition, victory, timestamp)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, g.UserID, g.Composition, g.Victory, g.Timestamp.UnixMilli()).Scan(&g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return g, nil
}

// ListGames returns a user's games, newest first
func (s *Store) ListGames(ctx context.Context, userID int64) ([]Game, error) {
	rows, err := s.query(ctx, `
		SELECT id, user_id, composition, victory, timestamp
		FROM games WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	games := []Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// GetGame returns a game only when it belongs to userID
func (s *Store) GetGame(ctx context.Context, userID, gameID int64) (*Game, error) {
	row := s.queryRow(ctx, `
		SELECT id, user_id, composition, victory, timestamp
		FROM games WHERE id = ? AND user_id = ?
	`, gameID, userID)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

// UpdateGame rewrites a game owned by userID
func (s *Store) UpdateGame(ctx context.Context, userID, gameID int64, composition string, victory bool) (*Game, error) {
	res, err := s.exec(ctx, `
		UPDATE games SET composition = ?, victory = ?
		WHERE id = ? AND user_id = ?
	`, composition, victory, gameID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetGame(ctx, userID, gameID)
}

// DeleteGame removes a game owned by userID
func (s *Store) DeleteGame(ctx context.Context, userID, gameID int64) error {
	res, err := s.exec(ctx, `DELETE FROM games WHERE id = ? AND user_id = ?`, gameID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return requireAffected(res)
}

// GameStatsByComposition groups a user's games by composition
func (s *Store) GameStatsByComposition(ctx context.Context, userID int64) ([]GameStats, error) {
	rows, err := s.query(ctx, `
		SELECT composition, COUNT(*),
			SUM(CASE WHEN victory THEN 1 ELSE 0 END)
		FROM games WHERE user_id = ?
		GROUP BY composition
		ORDER BY composition
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query game stats: %w", err)
	}
	defer rows.Close()

	result := []GameStats{}
	for rows.Next() {
		var gs GameStats
		if err := rows.Scan(&gs.Composition, &gs.GamesPlayed, &gs.Wins); err != nil {
			return nil, fmt.Errorf("failed to scan game stats: %w", err)
		}
		if gs.GamesPlayed > 0 {
			gs.WinRate = math.Round(float64(gs.Wins)/float64(gs.GamesPlayed)*10000) / 100
		}
		result = append(result, gs)
	}
	return result, rows.Err()
}
