package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/logging"
	"github.com/shopit/backend/internal/models"
	"github.com/shopit/backend/internal/tokens"
)

const principalKey = "principal"

// Principal is the authenticated identity attached to the request context
// for the remainder of its lifetime.
type Principal struct {
	UserID   uint
	Username string
	Role     models.Role
}

// SessionFilter gates every non-public request behind a valid bearer token.
// The external response never says why a token was rejected; the distinct
// kinds only reach the logs.
type SessionFilter struct {
	DB             *gorm.DB
	Issuer         *tokens.Issuer
	PublicPrefixes []string
}

func (f *SessionFilter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		for _, prefix := range f.PublicPrefixes {
			if strings.HasPrefix(path, prefix) {
				return next(c)
			}
		}

		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("middleware", "session_filter", "path", path)

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, _ := strings.CutPrefix(header, "Bearer ")

		username, err := f.Issuer.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, tokens.ErrTokenEmpty):
				l.Warn("token rejected", "reason", "empty")
			case errors.Is(err, tokens.ErrTokenExpired):
				l.Warn("token rejected", "reason", "expired")
			case errors.Is(err, tokens.ErrTokenUnsupported):
				l.Warn("token rejected", "reason", "unsupported")
			default:
				l.Warn("token rejected", "reason", "malformed")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		var user models.User
		if err := f.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
			l.Warn("token rejected", "reason", "unknown subject")
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		c.Set(principalKey, Principal{
			UserID:   user.ID,
			Username: user.Username,
			Role:     user.Role,
		})
		return next(c)
	}
}

// FromContext returns the principal set by the session filter.
func FromContext(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}

// RequireRole rejects requests whose principal carries none of the roles.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := FromContext(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			for _, role := range roles {
				if p.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
		}
	}
}
