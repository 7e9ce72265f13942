package auth

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/config"
	"github.com/shopit/backend/internal/models"
	"github.com/shopit/backend/internal/tokens"
)

func newTestFilter(t *testing.T, ttl time.Duration) (*SessionFilter, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	return &SessionFilter{
		DB:             db,
		Issuer:         tokens.NewIssuer([]byte("test-jwt-secret"), ttl),
		PublicPrefixes: []string{"/health", "/api/v1/public"},
	}, db
}

func createUser(t *testing.T, db *gorm.DB, username string, role models.Role) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: "hashed", Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// run sends a request through the filter into a handler that records the
// principal it saw.
func run(t *testing.T, f *SessionFilter, path, authHeader string) (*httptest.ResponseRecorder, *Principal, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Principal
	handler := f.Middleware(func(c echo.Context) error {
		if p, ok := FromContext(c); ok {
			seen = &p
		}
		return c.NoContent(http.StatusOK)
	})
	return rec, seen, handler(c)
}

func TestSessionFilter_PublicPrefixBypasses(t *testing.T) {
	t.Parallel()

	f, _ := newTestFilter(t, 15*time.Minute)

	rec, seen, err := run(t, f, "/health", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)

	rec, _, err = run(t, f, "/api/v1/public/products", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionFilter_MissingToken(t *testing.T) {
	t.Parallel()

	f, _ := newTestFilter(t, 15*time.Minute)

	_, _, err := run(t, f, "/api/v1/cart", "")
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestSessionFilter_MalformedToken(t *testing.T) {
	t.Parallel()

	f, _ := newTestFilter(t, 15*time.Minute)

	_, _, err := run(t, f, "/api/v1/cart", "Bearer not-a-jwt")
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestSessionFilter_ExpiredToken(t *testing.T) {
	t.Parallel()

	f, db := newTestFilter(t, -time.Minute)
	createUser(t, db, "alice", models.RoleUser)

	token, err := f.Issuer.Issue("alice")
	require.NoError(t, err)

	_, _, err = run(t, f, "/api/v1/cart", "Bearer "+token)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestSessionFilter_UnknownSubject(t *testing.T) {
	t.Parallel()

	f, _ := newTestFilter(t, 15*time.Minute)

	token, err := f.Issuer.Issue("ghost")
	require.NoError(t, err)

	_, _, err = run(t, f, "/api/v1/cart", "Bearer "+token)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestSessionFilter_ValidTokenSetsPrincipal(t *testing.T) {
	t.Parallel()

	f, db := newTestFilter(t, 15*time.Minute)
	user := createUser(t, db, "alice", models.RoleSeller)

	token, err := f.Issuer.Issue("alice")
	require.NoError(t, err)

	rec, seen, err := run(t, f, "/api/v1/cart", "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, user.ID, seen.UserID)
	assert.Equal(t, "alice", seen.Username)
	assert.Equal(t, models.RoleSeller, seen.Role)
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	invoke := func(p *Principal, roles ...models.Role) error {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		if p != nil {
			c.Set(principalKey, *p)
		}
		return RequireRole(roles...)(ok)(c)
	}

	// no principal at all
	err := invoke(nil, models.RoleAdmin)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	// wrong role
	err = invoke(&Principal{UserID: 1, Username: "bob", Role: models.RoleUser}, models.RoleAdmin)
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.Code)

	// any of the listed roles passes
	assert.NoError(t, invoke(&Principal{UserID: 1, Username: "eve", Role: models.RoleSeller},
		models.RoleSeller, models.RoleAdmin))
	assert.NoError(t, invoke(&Principal{UserID: 2, Username: "root", Role: models.RoleAdmin},
		models.RoleSeller, models.RoleAdmin))
}
