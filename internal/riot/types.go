package riot

import "time"

// AccountResponse represents the response from /riot/account/v1/accounts/by-riot-id
type AccountResponse struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// Match is the parsed envelope of /tft/match/v1/matches/{matchId}.
// Participant boards stay in raw form and are read by ExtractPlayerData.
type Match struct {
	MatchID      string   `json:"match_id"`
	GameDatetime int64    `json:"game_datetime"` // Unix millis
	GameVersion  string   `json:"game_version"`
	SetNumber    int      `json:"tft_set_number"`
	Participants []string `json:"participants"` // PUUIDs

	raw []byte
}

// PlayedAt returns the match start time in UTC
func (m *Match) PlayedAt() time.Time {
	if m.GameDatetime <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.GameDatetime).UTC()
}

// Raw returns the original JSON payload
func (m *Match) Raw() []byte {
	return m.raw
}
