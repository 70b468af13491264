package stats

// WinThreshold is the worst placement that still counts as a top-half finish.
const WinThreshold = 4

// LeaderboardSize caps the number of entries returned by TopUnits and TopTraits.
const LeaderboardSize = 5

// Trait is one trait activated (or not) on a player's board
type Trait struct {
	Name        string `json:"name"`
	TierCurrent int    `json:"tier_current"`
	NumUnits    int    `json:"num_units"`
}

// Unit is one champion fielded on a player's final board
type Unit struct {
	CharacterID string   `json:"character_id"`
	Tier        int      `json:"tier"`
	Items       []string `json:"items"`
}

// MatchRecord is the per-player view of a single match used for aggregation
type MatchRecord struct {
	Placement int     `json:"placement"`
	Traits    []Trait `json:"traits"`
	Units     []Unit  `json:"units"`
}

// IsWin reports whether the record is a top-half finish
func (m MatchRecord) IsWin() bool {
	return m.Placement <= WinThreshold
}

// CompositionStats holds aggregated results for one composition bucket
type CompositionStats struct {
	Composition  string  `json:"composition"`
	GamesPlayed  int     `json:"games_played"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"win_rate"`
	AvgPlacement float64 `json:"avg_placement"`
}

// UnitStats is a top-units leaderboard entry
type UnitStats struct {
	CharacterID string  `json:"character_id"`
	Count       int     `json:"count"`
	WinRate     float64 `json:"winrate"`
}

// TraitStats is a top-traits leaderboard entry
type TraitStats struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	WinRate float64 `json:"winrate"`
}
