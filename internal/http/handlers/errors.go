package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/carmarket/server/internal/auth"
	"github.com/carmarket/server/internal/repo"
	"github.com/carmarket/server/internal/security/password"
)

// Messages shared by failures that must look identical to callers.
const (
	msgIncorrectCredentials = "incorrect credentials"
	msgInvalidResetCode     = "invalid or expired code"
	msgInternal             = "internal error"
)

// respondLoginError reports unknown identifiers and wrong passwords the same way.
func respondLoginError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if errors.Is(err, auth.ErrNotFound) || errors.Is(err, auth.ErrBadCredentials) {
		respondWithError(w, http.StatusUnauthorized, msgIncorrectCredentials)
		return
	}
	respondInternal(w, r, log, "login failed", err)
}

// respondResetError gives every code or lookup failure the same answer.
func respondResetError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, auth.ErrNoActiveCode),
		errors.Is(err, auth.ErrCodeInvalid),
		errors.Is(err, auth.ErrCodeExpired):
		respondWithError(w, http.StatusBadRequest, msgInvalidResetCode)
	case errors.Is(err, password.ErrEmptyPassword):
		respondWithError(w, http.StatusBadRequest, "password is required")
	default:
		respondInternal(w, r, log, "password reset failed", err)
	}
}

// respondServiceError maps domain errors of authenticated operations; the caller is known,
// so code failures are reported precisely.
func respondServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrDuplicateIdentifier):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrBadCredentials):
		respondWithError(w, http.StatusBadRequest, "incorrect password")
	case errors.Is(err, auth.ErrNoActiveCode):
		respondWithError(w, http.StatusBadRequest, "no active code, request a new one")
	case errors.Is(err, auth.ErrCodeExpired):
		respondWithError(w, http.StatusBadRequest, "code expired")
	case errors.Is(err, auth.ErrCodeInvalid):
		respondWithError(w, http.StatusBadRequest, "invalid code")
	case errors.Is(err, auth.ErrNoDestination):
		respondWithError(w, http.StatusBadRequest, "no destination for this channel")
	case errors.Is(err, auth.ErrDelivery):
		log.WarnContext(r.Context(), op+" delivery failed", "error", err)
		respondWithError(w, http.StatusBadGateway, "could not deliver code")
	case errors.Is(err, password.ErrEmptyPassword):
		respondWithError(w, http.StatusBadRequest, "password is required")
	case errors.Is(err, repo.ErrStale):
		respondWithError(w, http.StatusConflict, "record changed concurrently, retry")
	default:
		respondInternal(w, r, log, op+" failed", err)
	}
}

func respondInternal(w http.ResponseWriter, r *http.Request, log *slog.Logger, msg string, err error) {
	log.ErrorContext(r.Context(), msg, "error", err)
	respondWithError(w, http.StatusInternalServerError, msgInternal)
}
