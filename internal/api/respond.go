package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"tfttracker/internal/apperr"
	"tfttracker/internal/riot"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"detail": ...} with the status its code maps to.
// Internal errors are logged and their cause hidden.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	appErr := apperr.From(err)
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError && appErr.Code == apperr.CodeInternal {
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, map[string]string{"detail": appErr.Message})
}

// unprocessable is a request body that failed validation
func unprocessable(message string) *apperr.Error {
	return &apperr.Error{Code: apperr.CodeInvalidArgument, Message: message, Status: http.StatusUnprocessableEntity}
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return unprocessable("Could not read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return unprocessable("Request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return unprocessable("Invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, unprocessable("Invalid " + name)
	}
	return id, nil
}

// riotError maps Riot client failures onto client-facing errors.
// Upstream status codes are relayed as-is.
func riotError(err error) error {
	var (
		appErr *apperr.Error
		apiErr *riot.APIError
		urlErr *url.Error
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, riot.ErrInvalidRegion):
		return apperr.Wrap(apperr.CodeInvalidArgument, "Invalid region", err)
	case errors.Is(err, riot.ErrParticipantNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "PUUID not found in this match", err)
	case errors.As(err, &apiErr):
		return apperr.WithStatus(apiErr.StatusCode,
			"Riot API error: "+strconv.Itoa(apiErr.StatusCode)+" - "+apiErr.Body, err)
	case errors.As(err, &urlErr):
		return apperr.Wrap(apperr.CodeUnavailable, "Riot API unavailable", err)
	default:
		return err
	}
}

var errRiotDisabled = &apperr.Error{
	Code:    apperr.CodeUnavailable,
	Message: "Riot API is not configured",
	Status:  http.StatusServiceUnavailable,
}
