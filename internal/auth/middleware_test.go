package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/marina/internal/models"
	"github.com/your-org/marina/internal/storage"
)

type fakeUserGetter struct {
	users map[int64]*models.User
}

func (f *fakeUserGetter) GetUser(_ context.Context, id int64) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func middlewareRouter(tokens *TokenService, users UserGetter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", Middleware(tokens, users), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": user.Username})
	})
	return r
}

func TestMiddleware_AttachesCurrentUser(t *testing.T) {
	tokens := NewTokenService("unit-test-secret", time.Hour)
	users := &fakeUserGetter{users: map[int64]*models.User{
		7: {ID: 7, Username: "harbourmaster", IsActive: true},
	}}
	r := middlewareRouter(tokens, users)

	token, err := tokens.CreateAccessToken(7)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "harbourmaster")
}

func TestMiddleware_RejectionsAreUniform(t *testing.T) {
	tokens := NewTokenService("unit-test-secret", time.Hour)
	users := &fakeUserGetter{users: map[int64]*models.User{
		7: {ID: 7, Username: "harbourmaster", IsActive: true},
		8: {ID: 8, Username: "retired", IsActive: false},
	}}
	r := middlewareRouter(tokens, users)

	goodFor := func(id int64) string {
		token, err := tokens.CreateAccessToken(id)
		require.NoError(t, err)
		return token
	}
	otherIssuer := NewTokenService("another-secret", time.Hour)
	misSigned, err := otherIssuer.CreateAccessToken(7)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not a bearer scheme", "Token abc"},
		{"mis-signed token", "Bearer " + misSigned},
		{"unknown user", "Bearer " + goodFor(999)},
		{"inactive user", "Bearer " + goodFor(8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
