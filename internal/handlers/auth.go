package handlers

import (
	"net/http"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/middleware"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/utils"
	"go.uber.org/zap"
)

// LoginRequest represents a login request. Username may also be an e-mail address.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new pair
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// login handles user login
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var loginReq LoginRequest
	if err := decodeJSON(req, &loginReq); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if err := r.Validator.Struct(loginReq); err != nil {
		r.respondAppError(w, req, err)
		return
	}

	// 1. Check credentials
	if !r.Authenticator.Verify(req.Context(), loginReq.Username, loginReq.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	// 2. Find User
	user, err := access.FindUserByLogin(req.Context(), r.DB, loginReq.Username)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	// 3. Update Last Login
	now := time.Now().UTC()
	if err := r.DB.WithContext(req.Context()).Model(user).Update("last_login", now).Error; err != nil {
		r.log.Warn("could not record last login", zap.Uint("user", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	r.respondTokens(w, user)
}

// refresh issues a new token pair from a refresh token
func (r *Router) refresh(w http.ResponseWriter, req *http.Request) {
	var refreshReq RefreshRequest
	if err := decodeJSON(req, &refreshReq); err != nil {
		r.respondAppError(w, req, err)
		return
	}
	if err := r.Validator.Struct(refreshReq); err != nil {
		r.respondAppError(w, req, err)
		return
	}

	claims, err := utils.ValidateToken(refreshReq.RefreshToken, r.JWTSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	id, err := utils.RefreshTokenUserID(claims)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	user, err := access.LoadUser(req.Context(), r.DB, id)
	if err != nil || !user.IsActive {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	r.respondTokens(w, user)
}

func (r *Router) respondTokens(w http.ResponseWriter, user *models.User) {
	accessToken, refreshToken, err := utils.GenerateTokens(user.ID, user.Username, r.JWTSecret)
	if err != nil {
		r.log.Error("failed to generate tokens", zap.Uint("user", user.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": map[string]string{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
		"user":        user,
		"permissions": access.Effective(user).List(),
	})
}

// me returns the authenticated user and its effective permissions
func (r *Router) me(w http.ResponseWriter, req *http.Request) {
	user, ok := middleware.UserFrom(req.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":        user,
		"permissions": access.Effective(user).List(),
	})
}
