package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/carmarket/server/internal/auth"
	"github.com/carmarket/server/internal/middleware"
	"github.com/carmarket/server/internal/model"
	"github.com/google/uuid"
)

// UserHandler serves self-service and admin user endpoints
type UserHandler struct {
	svc            *auth.Service
	jwt            *auth.JWTService
	log            *slog.Logger
	codeLimiter    *middleware.RateLimiter
	attemptLimiter *middleware.RateLimiter
}

// NewUserHandler creates a new user handler. codeLimiter throttles code sends and
// attemptLimiter throttles code checks, both per identifier; either may be nil.
func NewUserHandler(svc *auth.Service, jwt *auth.JWTService, codeLimiter, attemptLimiter *middleware.RateLimiter, log *slog.Logger) *UserHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandler{svc: svc, jwt: jwt, log: log, codeLimiter: codeLimiter, attemptLimiter: attemptLimiter}
}

type codeRequest struct {
	Code string `json:"code"`
}

type resetPasswordRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Code         string `json:"code"`
	NewPassword  string `json:"newPassword"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type profileRequest struct {
	Name string `json:"name"`
}

type deviceTokenRequest struct {
	DeviceToken string `json:"deviceToken"`
}

type adminProfileRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Name         string `json:"name"`
}

type updateRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type adminVerifyRequest struct {
	UserID  string `json:"userId"`
	Channel string `json:"channel"`
}

// HandleIsAuth handles GET /users/isauth
func (h *UserHandler) HandleIsAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Touch(r.Context(), user); err != nil {
		respondServiceError(w, r, h.log, "isauth", err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// HandleResendCode handles GET /users/verify-email and /users/verify-phone
func (h *UserHandler) HandleResendCode(p model.Purpose) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		ch, _ := p.Channel()
		if user.Verified(ch) {
			respondWithError(w, http.StatusBadRequest, string(ch)+" already verified")
			return
		}
		if dest, ok := user.Destination(ch); ok && !h.allowCode(w, dest) {
			return
		}
		if err := h.svc.Codes().Resend(r.Context(), user, p); err != nil {
			respondServiceError(w, r, h.log, "resend "+string(p), err)
			return
		}
		respondJSON(w, http.StatusOK, messageResponse{OK: true, Message: string(ch) + " verification code sent"})
	}
}

// HandleVerifyCode handles POST /users/verify-email and /users/verify-phone
func (h *UserHandler) HandleVerifyCode(p model.Purpose) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := h.currentUser(w, r)
		if !ok {
			return
		}
		var req codeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Code = strings.TrimSpace(req.Code)
		if req.Code == "" {
			respondWithError(w, http.StatusBadRequest, "code is required")
			return
		}
		ch, _ := p.Channel()
		if user.Verified(ch) {
			respondWithError(w, http.StatusBadRequest, string(ch)+" already verified")
			return
		}
		if !h.allowAttempt(w, user.ID.String()) {
			return
		}
		if err := h.svc.Codes().Validate(r.Context(), user, p, req.Code); err != nil {
			respondServiceError(w, r, h.log, "verify "+string(ch), err)
			return
		}
		respondJSON(w, http.StatusOK, newUserResponse(user))
	}
}

// HandleSendForgotPasswordCode handles GET /users/forgot-password?emailOrPhone=&sendTo=.
// The answer is the same whether or not the account exists.
func (h *UserHandler) HandleSendForgotPasswordCode(w http.ResponseWriter, r *http.Request) {
	identifier := queryIdentifier(r, "emailOrPhone")
	if identifier == "" {
		respondWithError(w, http.StatusBadRequest, "emailOrPhone is required")
		return
	}
	sendTo := r.URL.Query().Get("sendTo")
	if sendTo == "" {
		sendTo = string(model.ChannelPhone)
		if strings.Contains(identifier, "@") {
			sendTo = string(model.ChannelEmail)
		}
	}
	ch, err := model.ParseChannel(sendTo)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "sendTo must be email or phone")
		return
	}
	if !h.allowCode(w, identifier) {
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), identifier, ch); err != nil {
		if !errors.Is(err, auth.ErrDelivery) {
			respondInternal(w, r, h.log, "password reset request failed", err)
			return
		}
		h.log.WarnContext(r.Context(), "password reset code not delivered", "channel", string(ch), "error", err)
	}
	respondJSON(w, http.StatusOK, messageResponse{OK: true, Message: "if the account exists, a reset code was sent to its " + string(ch)})
}

// HandleResetPassword handles POST /users/forgot-password
func (h *UserHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.EmailOrPhone = strings.TrimSpace(req.EmailOrPhone)
	req.Code = strings.TrimSpace(req.Code)
	if req.EmailOrPhone == "" || req.Code == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "emailOrPhone, code and newPassword are required")
		return
	}
	if !h.allowAttempt(w, req.EmailOrPhone) {
		return
	}

	user, err := h.svc.ResetPassword(r.Context(), req.EmailOrPhone, req.Code, req.NewPassword)
	if err != nil {
		respondResetError(w, r, h.log, err)
		return
	}
	respondWithCredentials(w, r, h.jwt, h.log, http.StatusOK, user)
}

// HandleChangePassword handles PATCH /users/change-password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		respondWithError(w, http.StatusBadRequest, "oldPassword and newPassword are required")
		return
	}
	if err := h.svc.ChangePassword(r.Context(), user, req.OldPassword, req.NewPassword); err != nil {
		respondServiceError(w, r, h.log, "change password", err)
		return
	}
	respondWithCredentials(w, r, h.jwt, h.log, http.StatusCreated, user)
}

// HandleUpdateProfile handles PATCH /users/profile/update
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.UpdateProfile(r.Context(), user, req.Name); err != nil {
		respondServiceError(w, r, h.log, "update profile", err)
		return
	}
	respondWithCredentials(w, r, h.jwt, h.log, http.StatusCreated, user)
}

// HandleUpdateDeviceToken handles PATCH /users/device-token
func (h *UserHandler) HandleUpdateDeviceToken(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req deviceTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.UpdateDeviceToken(r.Context(), user, req.DeviceToken); err != nil {
		respondServiceError(w, r, h.log, "update device token", err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// HandleAdminUpdateProfile handles PATCH /users/admin/profile/update
func (h *UserHandler) HandleAdminUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req adminProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.EmailOrPhone) == "" || strings.TrimSpace(req.Name) == "" {
		respondWithError(w, http.StatusBadRequest, "emailOrPhone and name are required")
		return
	}

	user, err := h.svc.FindByIdentifier(r.Context(), req.EmailOrPhone)
	if err != nil {
		respondServiceError(w, r, h.log, "admin update profile", err)
		return
	}
	if err := h.svc.UpdateProfile(r.Context(), user, req.Name); err != nil {
		respondServiceError(w, r, h.log, "admin update profile", err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// HandleUpdateRole handles PATCH /users/admin/profile/update-role
func (h *UserHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	targetID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid userId")
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid role")
		return
	}

	user, err := h.svc.AssignRole(r.Context(), targetID, role)
	if err != nil {
		respondServiceError(w, r, h.log, "update role", err)
		return
	}
	if actor, ok := middleware.GetUser(r.Context()); ok {
		h.log.InfoContext(r.Context(), "role updated", "actor_id", actor.ID.String(), "user_id", user.ID.String(), "role", string(role))
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// HandleFindUser handles GET /users/admin/profile/find?emailOrPhone=
func (h *UserHandler) HandleFindUser(w http.ResponseWriter, r *http.Request) {
	identifier := queryIdentifier(r, "emailOrPhone")
	if identifier == "" {
		respondWithError(w, http.StatusBadRequest, "emailOrPhone is required")
		return
	}
	user, err := h.svc.FindByIdentifier(r.Context(), identifier)
	if err != nil {
		respondServiceError(w, r, h.log, "find user", err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// HandleAdminVerify handles PATCH /users/admin/profile/verify
func (h *UserHandler) HandleAdminVerify(w http.ResponseWriter, r *http.Request) {
	var req adminVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	targetID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid userId")
		return
	}
	ch, err := model.ParseChannel(req.Channel)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "channel must be email or phone")
		return
	}

	user, err := h.svc.AdminVerify(r.Context(), targetID, ch)
	if err != nil {
		respondServiceError(w, r, h.log, "admin verify", err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *UserHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return user, true
}

func (h *UserHandler) allowCode(w http.ResponseWriter, identifier string) bool {
	if h.codeLimiter != nil && !h.codeLimiter.Allow(middleware.GetIdentifierKey(identifier)) {
		respondWithError(w, http.StatusTooManyRequests, "too many code requests, try again later")
		return false
	}
	return true
}

func (h *UserHandler) allowAttempt(w http.ResponseWriter, key string) bool {
	if h.attemptLimiter != nil && !h.attemptLimiter.Allow(middleware.GetIdentifierKey(key)) {
		respondWithError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return false
	}
	return true
}
