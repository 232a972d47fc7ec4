package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bellcorp/events/internal/auth"
	"github.com/bellcorp/events/internal/config"
	"github.com/bellcorp/events/internal/domain/user"
	"github.com/bellcorp/events/internal/http/middlewares"
	"github.com/bellcorp/events/internal/repo/postgres"
	"github.com/bellcorp/events/internal/security"
	"github.com/gin-gonic/gin"
)

const refreshCookieName = "refresh_token"

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error)
}

type AuthHandler struct {
	users        UserStore
	jwt          *auth.Manager
	refreshStore *postgres.RefreshTokensRepo
	cfg          config.Config
}

func NewAuthHandler(users UserStore, jwtManager *auth.Manager, refreshStore *postgres.RefreshTokensRepo, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:        users,
		jwt:          jwtManager,
		refreshStore: refreshStore,
		cfg:          cfg,
	}
}

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	// everyone signs up as a plain user; admins are seeded
	u, err := h.users.Create(cctx, req.Email, hash, req.Name, "user")

	if err != nil {
		if err == postgres.ErrEmailAlreadyUsed {
			RespondBadRequest(ctx, "Email is already in use.", gin.H{"field": "email"})
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	access, refreshRaw, expiresAt, ok := h.issueSession(ctx, cctx, u)
	if !ok {
		return
	}

	h.setRefreshCookie(ctx, refreshRaw, expiresAt)

	ctx.JSON(http.StatusCreated, gin.H{
		"accessToken": access,
		"user":        u,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	if !security.CheckPassword(u.PasswordHash, req.Password) {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	access, refreshRaw, expiresAt, ok := h.issueSession(ctx, cctx, u)
	if !ok {
		return
	}

	h.setRefreshCookie(ctx, refreshRaw, expiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": access,
		"user":        u,
	})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	// rotation inside a tx with a row lock
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	row, err := h.refreshStore.GetForUpdate(cctx, tx, claims.JTI)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if row.RevokedAt != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if time.Now().UTC().After(row.ExpiresAt) {
		RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	}

	// the presented token must hash to the stored one
	if row.TokenHash != h.jwt.HashRefreshToken(raw) {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(row.UserID, claims.Email, claims.Role)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := h.refreshStore.Revoke(cctx, tx, row.ID, &newJTI); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	newRow := postgres.RefreshTokenRow{
		ID:        newJTI,
		UserID:    row.UserID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.refreshStore.Create(cctx, tx, newRow); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	access, err := h.jwt.GenerateAccessToken(row.UserID, claims.Email, claims.Role)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": access,
	})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	// revoking an already-revoked token is a no-op
	_ = h.refreshStore.Revoke(cctx, tx, claims.JTI, nil)
	_ = tx.Commit(cctx)

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)

	if err != nil {
		if err == postgres.ErrUserNotFound {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

// Helpers

func (h *AuthHandler) issueSession(ctx *gin.Context, cctx context.Context, u user.User) (access, refreshRaw string, expiresAt time.Time, ok bool) {
	access, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return "", "", time.Time{}, false
	}

	refreshRaw, jti, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Email, u.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return "", "", time.Time{}, false
	}

	tx, err := h.refreshStore.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not create session")
		return "", "", time.Time{}, false
	}

	defer func() { _ = tx.Rollback(cctx) }()

	row := postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(refreshRaw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.refreshStore.Create(cctx, tx, row); err != nil {
		RespondInternal(ctx, "Could not create session")
		return "", "", time.Time{}, false
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not create session")
		return "", "", time.Time{}, false
	}

	return access, refreshRaw, expiresAt, true
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, raw, maxAge, "/auth", "", secure, true)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, "/auth", "", secure, true)
}
