package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/httputil"
	"github.com/brightpath/safety-engine/internal/util"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.PayloadTooLarge()
	}
	return apperrors.ValidationError("Invalid request body")
}

func uuidParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if !util.IsValidUUID(value) {
		return "", apperrors.InvalidInput(name, "must be a UUID")
	}
	return value, nil
}

func childIDParam(r *http.Request) (string, error) {
	value := chi.URLParam(r, "childId")
	if !util.IsValidChildID(value) {
		return "", apperrors.InvalidInput("childId", "malformed identifier")
	}
	return value, nil
}

// intQuery returns fallback when the parameter is absent.
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput(name, "must be an integer")
	}
	return v, nil
}

func parsePage(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
