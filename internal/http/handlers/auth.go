package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/carmarket/server/internal/auth"
	"github.com/carmarket/server/internal/model"
)

// AuthHandler handles registration and login
type AuthHandler struct {
	svc *auth.Service
	jwt *auth.JWTService
	log *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *auth.Service, jwt *auth.JWTService, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{svc: svc, jwt: jwt, log: log}
}

type phoneRequest struct {
	ICC string `json:"icc"`
	NSN string `json:"nsn"`
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Phone       phoneRequest `json:"phone"`
	Password    string       `json:"password"`
	DeviceToken string       `json:"deviceToken"`
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Password     string `json:"password"`
	DeviceToken  string `json:"deviceToken"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Phone.NSN) == "" {
		respondWithError(w, http.StatusBadRequest, "email or phone is required")
		return
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		respondWithError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "password is required")
		return
	}

	user, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		PhoneICC:    req.Phone.ICC,
		PhoneNSN:    req.Phone.NSN,
		Password:    req.Password,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		respondServiceError(w, r, h.log, "register", err)
		return
	}
	h.log.InfoContext(r.Context(), "user registered", "user_id", user.ID.String(), "channels", len(user.Channels()))
	respondWithCredentials(w, r, h.jwt, h.log, http.StatusCreated, user)
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.EmailOrPhone) == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "emailOrPhone and password are required")
		return
	}

	user, err := h.svc.Login(r.Context(), req.EmailOrPhone, req.Password, req.DeviceToken)
	if err != nil {
		h.log.InfoContext(r.Context(), "login rejected", "identifier", auth.MaskDestination(model.NormalizeIdentifier(req.EmailOrPhone)), "error", err)
		respondLoginError(w, r, h.log, err)
		return
	}
	respondWithCredentials(w, r, h.jwt, h.log, http.StatusOK, user)
}

// respondWithCredentials returns the user with a freshly signed token.
func respondWithCredentials(w http.ResponseWriter, r *http.Request, jwt *auth.JWTService, log *slog.Logger, status int, u *model.User) {
	token, err := jwt.Sign(u)
	if err != nil {
		respondInternal(w, r, log, "sign token", err)
		return
	}
	respondJSON(w, status, credentialResponse{User: newUserResponse(u), Token: token})
}
