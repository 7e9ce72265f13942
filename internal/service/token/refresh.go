package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/shopit/backend/internal/apperrors"
	"github.com/shopit/backend/internal/logging"
	"github.com/shopit/backend/internal/models"
	"github.com/shopit/backend/internal/tokens"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

const (
	CookieName = "refreshToken"
	CookiePath = "/api/v1/auth/refresh"
)

// Manager owns the rotating long-lived credential. Only a keyed hash of the
// token is stored; the plaintext exists in the client cookie and nowhere
// else. One record per user, replaced wholesale on each login.
type Manager struct {
	DB      *gorm.DB
	HMACKey []byte
	TTL     time.Duration
	Issuer  *tokens.Issuer
}

// IssueFor generates a fresh opaque token for the user and persists its
// hash, invalidating any previously issued token.
func (m *Manager) IssueFor(ctx context.Context, username string) (string, time.Time, error) {
	var user models.User
	if err := m.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, apperrors.NotFound("User", "username", username)
		}
		return "", time.Time{}, fmt.Errorf("db error: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("cannot generate refresh token: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now()
	expiresAt := now.Add(m.TTL)

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		record := models.RefreshToken{
			UserID:    user.ID,
			TokenHash: m.Hash(plaintext),
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("cannot store refresh token: %w", err)
	}

	return plaintext, expiresAt, nil
}

// Redeem exchanges a presented refresh token for a new access token. The
// refresh token itself is not rotated here, only on login, so concurrent
// tabs redeeming at the same time do not invalidate each other. An expired
// record is never rotated; the caller must re-authenticate.
func (m *Manager) Redeem(ctx context.Context, presented string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "token.redeem")

	if presented == "" {
		return "", apperrors.Wrap(apperrors.KindAuthentication, ErrInvalidRefreshToken, "invalid refresh token")
	}

	var stored models.RefreshToken
	if err := m.DB.WithContext(ctx).Where("token_hash = ?", m.Hash(presented)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("redeem rejected", "reason", "hash not found")
			return "", apperrors.Wrap(apperrors.KindAuthentication, ErrInvalidRefreshToken, "invalid refresh token")
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	if time.Now().After(stored.ExpiresAt) {
		l.Warn("redeem rejected", "reason", "expired", "user_id", stored.UserID)
		return "", apperrors.Wrap(apperrors.KindAuthentication, ErrRefreshTokenExpired, "refresh token expired")
	}

	var user models.User
	if err := m.DB.WithContext(ctx).First(&user, stored.UserID).Error; err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	access, err := m.Issuer.Issue(user.Username)
	if err != nil {
		return "", fmt.Errorf("cannot issue access token: %w", err)
	}
	return access, nil
}

// Revoke deletes the stored record, making every copy of the plaintext
// permanently unusable even before its expiry.
func (m *Manager) Revoke(ctx context.Context, userID uint) error {
	if err := m.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Hash computes the keyed hash stored at rest. HMAC rather than a bare
// digest so a leaked table cannot be brute-forced offline without the key.
func (m *Manager) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, m.HMACKey)
	mac.Write([]byte(plaintext))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Cookie wraps the plaintext token for transport: HTTP-only and scoped to
// the refresh endpoint only, so no other request ever carries it.
func Cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     CookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func CleanCookie() *http.Cookie {
	return Cookie("", time.Now().Add(-time.Hour))
}
