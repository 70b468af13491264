package riot

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"tfttracker/internal/stats"
)

var (
	// ErrParticipantNotFound is returned when the puuid did not play the match
	ErrParticipantNotFound = errors.New("puuid not found in match")
	// ErrMalformedMatch is returned for payloads that are not a match document
	ErrMalformedMatch = errors.New("malformed match payload")
)

// PlayerData is one player's result in a match
type PlayerData struct {
	Placement int           `json:"placement"`
	Level     int           `json:"level"`
	GoldLeft  int           `json:"gold_left"`
	LastRound int           `json:"last_round"`
	Traits    []stats.Trait `json:"traits"`
	Units     []stats.Unit  `json:"units"`
}

// ToRecord converts to an aggregation record.
// ok is false when the placement is outside 1-8, so a broken row is
// excluded instead of skewing averages.
func (p *PlayerData) ToRecord() (stats.MatchRecord, bool) {
	if p.Placement < 1 || p.Placement > 8 {
		return stats.MatchRecord{}, false
	}
	return stats.MatchRecord{
		Placement: p.Placement,
		Traits:    p.Traits,
		Units:     p.Units,
	}, true
}

// ParseMatch reads the match envelope from a raw payload
func ParseMatch(body []byte) (*Match, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedMatch
	}

	doc := gjson.ParseBytes(body)
	m := &Match{
		MatchID:      doc.Get("metadata.match_id").String(),
		GameDatetime: doc.Get("info.game_datetime").Int(),
		GameVersion:  doc.Get("info.game_version").String(),
		SetNumber:    int(doc.Get("info.tft_set_number").Int()),
		raw:          body,
	}
	if m.MatchID == "" {
		return nil, fmt.Errorf("%w: missing metadata.match_id", ErrMalformedMatch)
	}
	for _, p := range doc.Get("metadata.participants").Array() {
		m.Participants = append(m.Participants, p.String())
	}
	return m, nil
}

// ExtractPlayerData pulls one participant's board out of a match.
// Missing numbers default to 0 and missing lists to empty; only active
// traits (tier_current > 0) are kept.
func ExtractPlayerData(m *Match, puuid string) (*PlayerData, error) {
	if m == nil || len(m.raw) == 0 {
		return nil, ErrMalformedMatch
	}

	var participant gjson.Result
	found := false
	gjson.GetBytes(m.raw, "info.participants").ForEach(func(_, p gjson.Result) bool {
		if p.Get("puuid").String() == puuid {
			participant = p
			found = true
			return false
		}
		return true
	})
	if !found {
		return nil, ErrParticipantNotFound
	}

	data := &PlayerData{
		Placement: int(participant.Get("placement").Int()),
		Level:     int(participant.Get("level").Int()),
		GoldLeft:  int(participant.Get("gold_left").Int()),
		LastRound: int(participant.Get("last_round").Int()),
		Traits:    []stats.Trait{},
		Units:     []stats.Unit{},
	}

	participant.Get("traits").ForEach(func(_, t gjson.Result) bool {
		tier := int(t.Get("tier_current").Int())
		if tier <= 0 {
			return true
		}
		data.Traits = append(data.Traits, stats.Trait{
			Name:        t.Get("name").String(),
			TierCurrent: tier,
			NumUnits:    int(t.Get("num_units").Int()),
		})
		return true
	})

	participant.Get("units").ForEach(func(_, u gjson.Result) bool {
		unit := stats.Unit{
			CharacterID: u.Get("character_id").String(),
			Tier:        int(u.Get("tier").Int()),
			Items:       []string{},
		}
		for _, item := range u.Get("itemNames").Array() {
			unit.Items = append(unit.Items, item.String())
		}
		data.Units = append(data.Units, unit)
		return true
	})

	return data, nil
}
