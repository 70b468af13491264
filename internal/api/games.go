package api

import (
	"errors"
	"net/http"
	"strings"

	"tfttracker/internal/apperr"
	"tfttracker/internal/data"
)

type gameRequest struct {
	Composition string `json:"composition"`
	Victory     bool   `json:"victory"`
}

var errGameNotFound = apperr.New(apperr.CodeNotFound, "Game not found or access denied")

func decodeGame(r *http.Request) (gameRequest, error) {
	var req gameRequest
	if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	req.Composition = strings.TrimSpace(req.Composition)
	if req.Composition == "" {
		return req, unprocessable("composition is required")
	}
	return req, nil
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request, u *data.User) {
	req, err := decodeGame(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	g, err := s.store.CreateGame(r.Context(), u.ID, req.Composition, req.Victory)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request, u *data.User) {
	games, err := s.store.ListGames(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleGameStats(w http.ResponseWriter, r *http.Request, u *data.User) {
	gameStats, err := s.store.GameStatsByComposition(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, gameStats)
}

func (s *Server) handleUpdateGame(w http.ResponseWriter, r *http.Request, u *data.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	req, err := decodeGame(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	g, err := s.store.UpdateGame(r.Context(), u.ID, id, req.Composition, req.Victory)
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, r, s.log, errGameNotFound)
		return
	}
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request, u *data.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	err = s.store.DeleteGame(r.Context(), u.ID, id)
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, r, s.log, errGameNotFound)
		return
	}
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, detail("Game deleted."))
}
