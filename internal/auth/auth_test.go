package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/repository/memory"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	tok, exp, err := tm.GenerateToken("u-1", domain.RoleSupervisor)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := tm.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.SubjectID)
	assert.Equal(t, domain.RoleSupervisor, claims.Role)

	_, err = NewTokenManager("other", 5).ParseToken(tok)
	assert.Error(t, err)
}

func TestGeneratePassword(t *testing.T) {
	a, err := GeneratePassword(16)
	require.NoError(t, err)
	b, err := GeneratePassword(16)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.True(t, strings.ContainsRune(passwordAlphabet, r), "unexpected rune %q", r)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "s3cret"))
	assert.Error(t, ComparePassword(hash, "wrong"))
}

func newProtectedApp(t *testing.T, users *memory.Users, tm *TokenManager, roles ...domain.Role) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	mw := NewAuthMiddleware(tm, users)
	app.Get("/", mw.Handle, RequireRoles(roles...), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(string(p.Role()))
	})
	return app
}

func TestAuthMiddlewareAndRoles(t *testing.T) {
	users := memory.NewUsers(
		domain.User{ID: "sup", Username: "sup", Role: domain.RoleSupervisor, Active: true},
		domain.User{ID: "req", Username: "req", Role: domain.RoleSelfService, Active: true},
		domain.User{ID: "gone", Username: "gone", Role: domain.RoleSupervisor, Active: false},
	)
	tm := NewTokenManager("secret", 5)
	app := newProtectedApp(t, users, tm, TriageRoles...)

	call := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if userID != "" {
			tok, _, err := tm.GenerateToken(userID, domain.RoleAdministrator)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, call("sup"))
	// the stored role wins over the role claimed in the token
	assert.Equal(t, http.StatusForbidden, call("req"))
	assert.Equal(t, http.StatusUnauthorized, call("gone"))
	assert.Equal(t, http.StatusUnauthorized, call("missing"))
	assert.Equal(t, http.StatusUnauthorized, call(""))
}
