package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/jwt"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
	"github.com/u-wave/u-wave-core-sub000/pkg/redis"
)

type Users interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type Handler struct {
	users        Users
	sessions     Sessions
	signer       *jwt.Signer
	secureCookie bool
	logger       zerolog.Logger
}

func NewHandler(users Users, sessions Sessions, signer *jwt.Signer, secureCookie bool, logger zerolog.Logger) *Handler {
	return &Handler{
		users:        users,
		sessions:     sessions,
		signer:       signer,
		secureCookie: secureCookie,
		logger:       logger.With().Str("ns", "uwave:auth").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		// Public routes
		auth.POST("/guest", h.guest)

		// Protected routes
		protected := auth.Group("", AuthMiddleware(h.signer, h.sessions))
		protected.GET("/me", h.me)
		protected.POST("/logout", h.logout)
	}
}

type GuestRequest struct {
	Username string `json:"username"`
}

func (r GuestRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(2, 32), is.PrintableASCII),
	)
}

// guest signs in as a new user with the default role.
func (h *Handler) guest(c *gin.Context) {
	var req GuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	_, err := h.users.GetUserByUsername(ctx, req.Username)
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username is taken"})
		return
	}
	if !errors.Is(err, errs.ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Username: req.Username,
		Roles:    []string{"user"},
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	sessionID := uuid.NewString()
	session := &redis.Session{
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(h.signer.TTL()),
	}
	if err := h.sessions.StoreSession(ctx, sessionID, session); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store session"})
		return
	}

	token, err := h.signer.GenerateToken(user.ID, sessionID, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})

	h.logger.Info().Str("user", user.ID).Str("username", user.Username).Msg("guest signed in")
	c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.users.GetUserByID(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.GetString("session_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	c.Status(http.StatusNoContent)
}
