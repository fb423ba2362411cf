package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		opts []reqOpt
		want int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"cookie", []reqOpt{withCookie("alice-token")}, http.StatusOK},
		{"bearer", []reqOpt{withHeader("Authorization", "Bearer alice-token")}, http.StatusOK},
		{"bearer lower case", []reqOpt{withHeader("Authorization", "bearer alice-token")}, http.StatusOK},
		{"bad token", []reqOpt{withCookie("forged")}, http.StatusUnauthorized},
		{"identity deleted", []reqOpt{withCookie("deleted-token")}, http.StatusUnauthorized},
		{"basic auth is not a session", []reqOpt{withHeader("Authorization", "Basic YTpi")}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/user/me", "", tt.opts...)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSessionToken_CookieWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", sessionToken(r))

	r.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", sessionToken(r))
}

func TestRequireAdmin(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.identities.list = []*models.PublicIdentity{alice.Public()}

	resp := env.do(t, http.MethodGet, "/api/admin/identities", "", withCookie("alice-token"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", decodeBody(t, resp)["code"])

	resp = env.do(t, http.MethodGet, "/api/admin/identities?limit=10&offset=20", "", withCookie("admin-token"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 10, env.identities.listLimit)
	assert.Equal(t, 20, env.identities.listOffset)
	users := decodeBody(t, resp)["users"].([]any)
	assert.Len(t, users, 1)

	resp = env.do(t, http.MethodGet, "/api/admin/identities?limit=-1", "", withCookie("admin-token"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.identities.loginFn = func(string, string) (*models.PublicIdentity, string, error) {
		return alice.Public(), "tok", nil
	}
	env.limiter.res = ratelimit.Result{Allowed: false, RetryAfter: 29500 * time.Millisecond}

	resp := env.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"p"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeBody(t, resp)["code"])
	require.Len(t, env.limiter.keys, 1)
	assert.Equal(t, "login:192.0.2.1", env.limiter.keys[0])
}

func TestRateLimit_VerifyEmail(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.limiter.res = ratelimit.Result{Allowed: false, RetryAfter: time.Minute}

	resp := env.do(t, http.MethodPost, "/api/auth/verify-email", `{"code":"123456"}`, withCookie("alice-token"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, []string{"verify-email:192.0.2.1"}, env.limiter.keys)
	assert.Empty(t, env.recovery.gotCode, "code must not reach the service")
}

func TestRateLimit_ProxyHeaders(t *testing.T) {
	login := func(env *testEnv, spoofed string) {
		env.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"p"}`,
			withHeader("X-Real-IP", spoofed), withHeader("X-Forwarded-For", spoofed))
	}
	okLogin := func(string, string) (*models.PublicIdentity, string, error) {
		return alice.Public(), "tok", nil
	}

	t.Run("ignored by default", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.identities.loginFn = okLogin
		for _, ip := range []string{"10.0.0.0", "10.0.0.1", "10.0.0.2"} {
			login(env, ip)
		}
		assert.Equal(t, []string{"login:192.0.2.1", "login:192.0.2.1", "login:192.0.2.1"}, env.limiter.keys)
	})

	t.Run("trusted behind a proxy", func(t *testing.T) {
		env := newTestEnv(t, Options{TrustProxyHeaders: true})
		env.identities.loginFn = okLogin
		login(env, "10.0.0.7")
		assert.Equal(t, []string{"login:10.0.0.7"}, env.limiter.keys)
	})
}

func TestRateLimit_LimiterDownLetsRequestThrough(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.identities.loginFn = func(string, string) (*models.PublicIdentity, string, error) {
		return alice.Public(), "tok", nil
	}
	env.limiter.err = errors.New("redis: connection refused")

	resp := env.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"p"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit_NotAppliedToReads(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.limiter.res = ratelimit.Result{Allowed: false}

	resp := env.do(t, http.MethodGet, "/api/user/me", "", withCookie("alice-token"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, env.limiter.keys)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, "60", retryAfterSeconds(time.Minute))
	assert.Equal(t, "3600", retryAfterSeconds(48*time.Hour))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::1]:5555"
	assert.Equal(t, "2001:db8::1", clientIP(r))
	r.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, Options{AllowedOrigins: []string{"https://app.example"}})

	resp := env.do(t, http.MethodOptions, "/api/auth/login", "",
		withHeader("Origin", "https://app.example"),
		withHeader("Access-Control-Request-Method", "POST"))
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	resp = env.do(t, http.MethodOptions, "/api/auth/login", "",
		withHeader("Origin", "https://evil.example"),
		withHeader("Access-Control-Request-Method", "POST"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
