package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carmarket/server/internal/model"
)

const maxBodyBytes = 1 << 20

// userResponse is the client view of a user: no digests, no codes.
type userResponse struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Email         *string      `json:"email,omitempty"`
	Phone         *model.Phone `json:"phone,omitempty"`
	Role          model.Role   `json:"role"`
	EmailVerified bool         `json:"emailVerified"`
	PhoneVerified bool         `json:"phoneVerified"`
	DeviceToken   *string      `json:"deviceToken,omitempty"`
	LastLoginAt   *time.Time   `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID.String(),
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		DeviceToken:   u.DeviceToken,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

// credentialResponse is returned by operations that change credentials or identity.
type credentialResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type messageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// queryIdentifier reads an e-mail or phone from the query string. An unescaped
// leading "+" arrives as a space, so a phone starting with a space gets it back.
func queryIdentifier(r *http.Request, key string) string {
	raw := r.URL.Query().Get(key)
	if !strings.Contains(raw, "@") && strings.HasPrefix(raw, " ") {
		return "+" + strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw)
}
