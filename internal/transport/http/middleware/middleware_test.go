package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"gopherchat/internal/pkg/jwtutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type managerAuth struct{ m *jwtutil.Manager }

func (a managerAuth) Authenticate(token string) (*jwtutil.Claims, error) {
	return a.m.ParseAccess(token)
}

func TestAuthJWT(t *testing.T) {
	m := jwtutil.NewManager("secret", time.Hour, time.Hour)
	access, refresh, err := m.Issue("user-1", "a@b.com", true)
	assert.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthJWT(managerAuth{m}), RequireAdmin(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.String(http.StatusOK, id)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"scheme", "Basic abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"ok", "Bearer " + access, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}

func TestRequireAdminRejectsRegularUser(t *testing.T) {
	m := jwtutil.NewManager("secret", time.Hour, time.Hour)
	access, _, err := m.Issue("user-1", "a@b.com", false)
	assert.NoError(t, err)

	r := gin.New()
	r.GET("/admin", AuthJWT(managerAuth{m}), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimiterPerIP(t *testing.T) {
	l := NewIPRateLimiter(60, 2, nil)
	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))
}

func TestRateLimiterPrunesIdleVisitors(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(60, 1, nil)
	l.now = func() time.Time { return now }

	l.Allow("1.1.1.1")
	l.Allow("2.2.2.2")
	assert.Equal(t, 2, l.size())

	now = now.Add(visitorIdleTTL + time.Minute)
	assert.True(t, l.Allow("3.3.3.3"))
	assert.Equal(t, 1, l.size())
}

func TestRateLimiterHandler(t *testing.T) {
	r := gin.New()
	r.POST("/auth/login", NewIPRateLimiter(60, 1, nil).Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
