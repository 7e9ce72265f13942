package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/hash"
	"github.com/shopit/backend/internal/logging"
	authmw "github.com/shopit/backend/internal/middleware/auth"
	"github.com/shopit/backend/internal/models"
	"github.com/shopit/backend/internal/mykafka"
	"github.com/shopit/backend/internal/service/token"
	"github.com/shopit/backend/internal/tokens"
)

type AuthHandler struct {
	DB       *gorm.DB
	Issuer   *tokens.Issuer
	Refresh  *token.Manager
	Producer *mykafka.Producer
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "user_events", fmt.Sprint(event["userID"]), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username, email and password are required")
	}

	role := models.RoleUser
	if req.Role != "" {
		var err error
		if role, err = models.ParseRole(req.Role); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown role %q", req.Role))
		}
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register failed", "reason", "cannot hash the password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         role,
	}

	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		if err := tx.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		} else {
			return echo.NewHTTPError(http.StatusConflict, "user already exists")
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		// every user owns exactly one cart, created at signup
		return tx.Create(&models.Cart{UserID: user.ID}).Error
	})
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			l.Warn("register failed", "reason", "user exists")
			return he
		}
		l.Error("register failed", "reason", "db error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, map[string]any{
		"type":     "user_registered",
		"userID":   user.ID,
		"username": user.Username,
	})

	l.Info("register success", "user_id", user.ID)
	return c.JSON(http.StatusCreated, echo.Map{
		"id": user.ID, "username": user.Username, "email": user.Email, "role": user.Role,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var user models.User
	if err := h.DB.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error; err != nil {
		l.Warn("login failed", "reason", "unknown username")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login failed", "reason", "bad password", "user_id", user.ID)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	accessToken, err := h.Issuer.Issue(user.Username)
	if err != nil {
		l.Error("login failed", "reason", "cannot sign access token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	// the refresh token rotates on every login, replacing the prior record
	refreshToken, refreshExp, err := h.Refresh.IssueFor(ctx, user.Username)
	if err != nil {
		l.Error("login failed", "reason", "cannot issue refresh token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(token.Cookie(refreshToken, refreshExp))

	h.publish(c, map[string]any{
		"type":     "user_logged_in",
		"userID":   user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": accessToken,
		"expires_in":   int(h.Issuer.TTL().Seconds()),
		"username":     user.Username,
		"role":         user.Role,
	})
}

// RefreshJWT mints a new access token from the refresh cookie. The cookie
// itself is not rotated here.
func (h *AuthHandler) RefreshJWT(c echo.Context) error {
	ctx := c.Request().Context()

	cookie, err := c.Cookie(token.CookieName)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token cookie not found")
	}

	accessToken, err := h.Refresh.Redeem(ctx, cookie.Value)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": accessToken,
		"expires_in":   int(h.Issuer.TTL().Seconds()),
	})
}

func (h *AuthHandler) LogOut(c echo.Context) error {
	ctx := c.Request().Context()

	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if err := h.Refresh.Revoke(ctx, p.UserID); err != nil {
		logging.FromContext(ctx).Error("logout failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(token.CleanCookie())

	h.publish(c, map[string]any{
		"type":   "user_logged_out",
		"userID": p.UserID,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
