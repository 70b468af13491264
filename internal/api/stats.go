package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"tfttracker/internal/apperr"
	"tfttracker/internal/data"
	"tfttracker/internal/stats"
)

const maxMatchLimit = 100

var errNoData = apperr.New(apperr.CodeNotFound, "No data available")

// cached serves view from the stats cache, computing and storing it on a miss.
// The version is read before the database so a sync that lands mid-request
// makes the write a no-op. Cache failures are logged and bypassed.
func cached[T any](ctx context.Context, s *Server, userID int64, view string, compute func() (T, error)) (T, error) {
	key := data.StatsKey(userID, view)

	var v T
	ok, err := s.cache.Get(ctx, key, &v)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
	}
	if ok {
		return v, nil
	}

	version, verr := s.cache.Version(ctx, userID)
	if verr != nil {
		s.log.WithError(verr).WithField("key", key).Warn("cache version read failed")
	}

	v, err = compute()
	if err != nil || verr != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, userID, version, key, v); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return v, nil
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request, u *data.User) {
	limit := data.DefaultMatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMatchLimit {
			writeError(w, r, s.log, unprocessable("limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	matches, err := s.store.ListMatches(r.Context(), u.ID, u.PUUID, limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request, u *data.User) {
	m, err := s.store.GetMatch(r.Context(), u.ID, u.PUUID, r.PathValue("match_id"))
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, r, s.log, apperr.New(apperr.CodeNotFound, "Match not found"))
		return
	}
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCompositions(w http.ResponseWriter, r *http.Request, u *data.User) {
	q := r.URL.Query()
	by := q.Get("by")
	if by == "" {
		by = "traits"
	}
	if by != "traits" && by != "units" {
		writeError(w, r, s.log, unprocessable("by must be 'traits' or 'units'"))
		return
	}
	sortBy := q.Get("sort")
	if sortBy != "" && sortBy != "games" {
		writeError(w, r, s.log, unprocessable("sort must be 'games'"))
		return
	}

	ctx := r.Context()
	result, err := cached(ctx, s, u.ID, "compositions:"+by, func() ([]stats.CompositionStats, error) {
		records, err := s.store.MatchRecords(ctx, u.ID, u.PUUID)
		if err != nil {
			return nil, err
		}
		if by == "units" {
			return s.agg.CompositionsByUnits(records), nil
		}
		return s.agg.CompositionsByTraits(records), nil
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	if sortBy == "games" {
		result = stats.SortByGames(result)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTopUnits(w http.ResponseWriter, r *http.Request, u *data.User) {
	ctx := r.Context()
	result, err := cached(ctx, s, u.ID, "units", func() ([]stats.UnitStats, error) {
		records, err := s.store.MatchRecords(ctx, u.ID, u.PUUID)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, errNoData
		}
		return s.agg.TopUnits(records), nil
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTopTraits(w http.ResponseWriter, r *http.Request, u *data.User) {
	ctx := r.Context()
	result, err := cached(ctx, s, u.ID, "traits", func() ([]stats.TraitStats, error) {
		records, err := s.store.MatchRecords(ctx, u.ID, u.PUUID)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, errNoData
		}
		return s.agg.TopTraits(records), nil
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, u *data.User) {
	if s.hub == nil {
		writeError(w, r, s.log, apperr.New(apperr.CodeUnavailable, "Live events are disabled"))
		return
	}
	if err := s.hub.Serve(w, r, u.ID); err != nil {
		// The upgrader has already written the HTTP error
		s.log.WithError(err).WithField("user_id", u.ID).Debug("websocket upgrade failed")
	}
}
