package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/metrics/export/prometheus"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/store/memory"
	"github.com/MrEthical07/tokenguard/user"
)

const (
	alicePassword = "correct-password-123"
	bobPassword   = "another-password-456"
)

type fixture struct {
	engine *tokenguard.Engine
	router http.Handler
	tokens *memory.TokenStore
}

func newFixture(t *testing.T, mutate func(*tokenguard.Config, *tokenguard.Builder)) *fixture {
	t.Helper()

	cfg := tokenguard.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(strings.Repeat("s", 32))
	cfg.JWT.Audience = "tokenguard-http-test"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnableLoginThrottle = false
	cfg.Security.EnableRefreshThrottle = false
	cfg.Metrics.Enabled = true

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	require.NoError(t, err)
	hashFor := func(pw string) string {
		h, err := hasher.Hash(pw)
		require.NoError(t, err)
		return h
	}

	tokens := memory.NewTokenStore(time.Now)
	users := memory.NewUserStore()
	users.AddRole(user.Role{ID: 1, Name: "Member", Permissions: []string{"todo.read"}})
	users.AddRole(user.Role{ID: 2, Name: "Administrator", Permissions: []string{"todo.read", "users.manage"}})
	require.NoError(t, users.AddUser(&user.User{
		ID:           "u-alice",
		Email:        user.MustEmail("alice@example.com"),
		PasswordHash: hashFor(alicePassword),
		Roles:        []user.RoleID{1, 2},
	}))
	require.NoError(t, users.AddUser(&user.User{
		ID:           "u-bob",
		Email:        user.MustEmail("bob@example.com"),
		PasswordHash: hashFor(bobPassword),
		Roles:        []user.RoleID{1},
	}))

	b := tokenguard.New().
		WithTokenRepository(tokens).
		WithUserRepository(users).
		WithRoleRepository(users)
	if mutate != nil {
		mutate(&cfg, b)
	}
	engine, err := b.WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	router := NewRouter(engine, Options{
		AllowedOrigins:      []string{"https://app.example.com"},
		RoleAdminPermission: "users.manage",
		Metrics:             prometheus.NewPrometheusExporter(engine).Handler(),
	})
	return &fixture{engine: engine, router: router, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, email, pw, device string) tokenResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: pw, DeviceID: device}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)

	out := f.login(t, "alice@example.com", alicePassword, "laptop")
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)
	assert.Equal(t, "Bearer", out.TokenType)
	assert.InDelta(t, (15 * time.Minute).Seconds(), float64(out.ExpiresIn), 2)

	rec := f.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "alice@example.com", Password: "wrong-password-000", DeviceID: "laptop"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", errorBody(t, rec))

	rec = f.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "nobody@example.com", Password: "wrong-password-000", DeviceID: "laptop"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", errorBody(t, rec))

	rec = f.do(t, http.MethodPost, "/auth/login", loginRequest{Email: "not-an-email", Password: alicePassword, DeviceID: "laptop"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", map[string]string{"unexpected": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, func(cfg *tokenguard.Config, b *tokenguard.Builder) {
		cfg.Security.EnableLoginThrottle = true
		cfg.Security.MaxLoginAttempts = 1
		b.WithRedis(rdb)
	})

	bad := loginRequest{Email: "alice@example.com", Password: "wrong-password-000", DeviceID: "laptop"}
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/auth/login", bad, "").Code)
	rec := f.do(t, http.MethodPost, "/auth/login", bad, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRefreshFailuresShareOneResponse(t *testing.T) {
	f := newFixture(t, nil)
	first := f.login(t, "alice@example.com", alicePassword, "laptop")

	rec := f.do(t, http.MethodPost, "/auth/refresh-token", refreshRequest{RefreshToken: first.RefreshToken, DeviceID: "laptop"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var next tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)

	other := f.login(t, "alice@example.com", alicePassword, "phone")

	cases := map[string]refreshRequest{
		"reused":          {RefreshToken: first.RefreshToken, DeviceID: "laptop"},
		"unknown":         {RefreshToken: "not-a-real-token", DeviceID: "laptop"},
		"device mismatch": {RefreshToken: other.RefreshToken, DeviceID: "tablet"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/auth/refresh-token", req, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, refreshFailureMessage, errorBody(t, rec))
		})
	}

	// The reuse above revoked the chain, so the successor is refused too.
	rec = f.do(t, http.MethodPost, "/auth/refresh-token", refreshRequest{RefreshToken: next.RefreshToken, DeviceID: "laptop"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, refreshFailureMessage, errorBody(t, rec))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	pair := f.login(t, "bob@example.com", bobPassword, "laptop")

	rec := f.do(t, http.MethodPost, "/auth/logout", logoutRequest{RefreshToken: pair.RefreshToken}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodPost, "/auth/logout", logoutRequest{RefreshToken: pair.RefreshToken}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	active, err := f.tokens.GetActiveByUserID(context.Background(), "u-bob")
	require.NoError(t, err)
	assert.Empty(t, active)

	rec = f.do(t, http.MethodPost, "/auth/refresh-token", refreshRequest{RefreshToken: pair.RefreshToken, DeviceID: "laptop"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetRoles(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.login(t, "alice@example.com", alicePassword, "laptop")
	member := f.login(t, "bob@example.com", bobPassword, "laptop")

	body := setRolesRequest{RoleIDs: []int64{1, 2}, Actor: "administrator"}

	rec := f.do(t, http.MethodPut, "/users/u-bob/roles", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/u-bob/roles", body, member.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/u-bob/roles", body, admin.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/users/u-bob/permissions", nil, member.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var perms map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perms))
	assert.Equal(t, []string{"todo.read", "users.manage"}, perms["permissions"])

	rec = f.do(t, http.MethodPut, "/users/u-nobody/roles", body, admin.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/u-bob/roles", setRolesRequest{RoleIDs: []int64{99}, Actor: "administrator"}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/u-bob/roles", setRolesRequest{RoleIDs: []int64{1}, Actor: "root"}, admin.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionsRequireBearer(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/users/u-bob/permissions", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	pair := f.login(t, "bob@example.com", bobPassword, "laptop")
	rec = f.do(t, http.MethodGet, "/users/u-missing/permissions", nil, pair.AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.login(t, "bob@example.com", bobPassword, "laptop")

	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tokenguard_login_success_total 1")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
