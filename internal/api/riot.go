package api

import (
	"errors"
	"net/http"
	"strings"

	"tfttracker/internal/apperr"
	"tfttracker/internal/data"
)

type linkRequest struct {
	GameName string `json:"game_name"`
	TagLine  string `json:"tag_line"`
	Region   string `json:"region"`
}

type linkResponse struct {
	Message  string `json:"message"`
	GameName string `json:"game_name"`
	TagLine  string `json:"tag_line"`
	Region   string `json:"region"`
	PUUID    string `json:"puuid"`
}

type matchIDsResponse struct {
	Message  string   `json:"message"`
	MatchIDs []string `json:"match_ids"`
}

func (s *Server) handleLinkRiot(w http.ResponseWriter, r *http.Request, u *data.User) {
	if s.riot == nil {
		writeError(w, r, s.log, errRiotDisabled)
		return
	}
	var req linkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if strings.TrimSpace(req.GameName) == "" || strings.TrimSpace(req.TagLine) == "" {
		writeError(w, r, s.log, unprocessable("game_name and tag_line are required"))
		return
	}
	region, err := s.riot.ValidateRegion(req.Region)
	if err != nil {
		writeError(w, r, s.log, riotError(err))
		return
	}

	ctx := r.Context()
	account, err := s.riot.GetAccountByRiotID(ctx, region, req.GameName, req.TagLine)
	if err != nil {
		writeError(w, r, s.log, riotError(err))
		return
	}

	owner, err := s.store.GetUserByPUUID(ctx, account.PUUID)
	switch {
	case err == nil && owner.ID != u.ID:
		writeError(w, r, s.log, apperr.New(apperr.CodeAlreadyExists, "Riot account already linked to another user"))
		return
	case err != nil && !errors.Is(err, data.ErrNotFound):
		writeError(w, r, s.log, err)
		return
	}

	linked, err := s.store.LinkRiotAccount(ctx, u.ID, account.PUUID, req.GameName, req.TagLine, region)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	// A relinked account has a different history
	if err := s.cache.InvalidateUser(ctx, u.ID); err != nil {
		s.log.WithError(err).Warn("cache invalidation failed")
	}

	writeJSON(w, http.StatusOK, linkResponse{
		Message:  "Riot account linked successfully!",
		GameName: linked.GameName,
		TagLine:  linked.TagLine,
		Region:   linked.Region,
		PUUID:    linked.PUUID,
	})
}

func (s *Server) handleRiotMatches(w http.ResponseWriter, r *http.Request, u *data.User) {
	if s.syncer == nil {
		writeError(w, r, s.log, errRiotDisabled)
		return
	}
	ids, err := s.syncer.RecentMatchIDs(r.Context(), u)
	if err != nil {
		writeError(w, r, s.log, riotError(err))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, matchIDsResponse{Message: "Matches fetched successfully", MatchIDs: ids})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, u *data.User) {
	if s.syncer == nil {
		writeError(w, r, s.log, errRiotDisabled)
		return
	}
	res, err := s.syncer.SyncUser(r.Context(), u)
	if err != nil {
		writeError(w, r, s.log, riotError(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
