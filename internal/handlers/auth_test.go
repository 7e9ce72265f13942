package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/config"
	"github.com/shopit/backend/internal/hash"
	authmw "github.com/shopit/backend/internal/middleware/auth"
	"github.com/shopit/backend/internal/models"
	"github.com/shopit/backend/internal/service/token"
	"github.com/shopit/backend/internal/tokens"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	issuer := tokens.NewIssuer([]byte("test-jwt-secret"), 15*time.Minute)
	return &AuthHandler{
		DB:     db,
		Issuer: issuer,
		Refresh: &token.Manager{
			DB:      db,
			HMACKey: []byte("test-hash-secret"),
			TTL:     24 * time.Hour,
			Issuer:  issuer,
		},
	}, db
}

func jsonRequest(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func registerUser(t *testing.T, h *AuthHandler, username, password string) {
	t.Helper()
	c, rec := jsonRequest(t, http.MethodPost, "/api/v1/auth/register",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"`+password+`"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == token.CookieName {
			return ck
		}
	}
	t.Fatalf("no %s cookie in response", token.CookieName)
	return nil
}

func TestAuthHandler_Register(t *testing.T) {
	t.Parallel()

	h, db := newAuthHandler(t)
	registerUser(t, h, "alice", "s3cret")

	var user models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&user).Error)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.True(t, hash.CheckPassword(user.PasswordHash, "s3cret"))

	// registration provisions the user's cart
	var cart models.Cart
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&cart).Error)
}

func TestAuthHandler_Register_Duplicate(t *testing.T) {
	t.Parallel()

	h, db := newAuthHandler(t)
	registerUser(t, h, "alice", "s3cret")

	c, _ := jsonRequest(t, http.MethodPost, "/api/v1/auth/register",
		`{"username":"alice","email":"other@example.com","password":"pw"}`)
	err := h.Register(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusConflict, he.Code)

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(1), users)
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	t.Parallel()

	h, _ := newAuthHandler(t)

	var he *echo.HTTPError

	c, _ := jsonRequest(t, http.MethodPost, "/api/v1/auth/register", `{"username":"alice"}`)
	require.ErrorAs(t, h.Register(c), &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)

	c, _ = jsonRequest(t, http.MethodPost, "/api/v1/auth/register",
		`{"username":"alice","email":"a@example.com","password":"pw","role":"superuser"}`)
	require.ErrorAs(t, h.Register(c), &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestAuthHandler_Login(t *testing.T) {
	t.Parallel()

	h, _ := newAuthHandler(t)
	registerUser(t, h, "alice", "s3cret")

	c, rec := jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
		`{"username":"alice","password":"s3cret"}`)
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "access_token")
	assert.Contains(t, body, `"username":"alice"`)

	ck := refreshCookie(t, rec)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, token.CookiePath, ck.Path)
	assert.NotEmpty(t, ck.Value)
}

func TestAuthHandler_Login_BadCredentials(t *testing.T) {
	t.Parallel()

	h, _ := newAuthHandler(t)
	registerUser(t, h, "alice", "s3cret")

	var he *echo.HTTPError

	c, _ := jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
		`{"username":"alice","password":"wrong"}`)
	require.ErrorAs(t, h.Login(c), &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	c, _ = jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
		`{"username":"nobody","password":"s3cret"}`)
	require.ErrorAs(t, h.Login(c), &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthHandler_RefreshJWT(t *testing.T) {
	t.Parallel()

	h, _ := newAuthHandler(t)
	registerUser(t, h, "alice", "s3cret")

	c, rec := jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
		`{"username":"alice","password":"s3cret"}`)
	require.NoError(t, h.Login(c))
	ck := refreshCookie(t, rec)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(ck)
	rec = httptest.NewRecorder()
	require.NoError(t, h.RefreshJWT(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")
}

func TestAuthHandler_RefreshJWT_NoCookie(t *testing.T) {
	t.Parallel()

	h, _ := newAuthHandler(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	err := h.RefreshJWT(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAuthHandler_LogOut(t *testing.T) {
	t.Parallel()

	h, db := newAuthHandler(t)
	registerUser(t, h, "alice", "s3cret")

	c, rec := jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
		`{"username":"alice","password":"s3cret"}`)
	require.NoError(t, h.Login(c))
	ck := refreshCookie(t, rec)

	var user models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&user).Error)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rec = httptest.NewRecorder()
	lc := e.NewContext(req, rec)
	lc.Set("principal", authmw.Principal{UserID: user.ID, Username: user.Username, Role: user.Role})
	require.NoError(t, h.LogOut(lc))
	require.Equal(t, http.StatusOK, rec.Code)

	// the logout response expires the cookie
	out := refreshCookie(t, rec)
	assert.Empty(t, out.Value)

	// the stored token is gone, so the old cookie can no longer be redeemed
	_, err := h.Refresh.Redeem(req.Context(), ck.Value)
	assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}
