package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confreg/backend/config"
	"github.com/confreg/backend/internal/middleware"
	"github.com/confreg/backend/internal/session"
)

const origin = "https://conf.example.org"

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server:    config.ServerConfig{UIOrigin: origin},
		Database:  config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "app.db")},
		Session:   config.SessionConfig{TTLHours: 1},
		RateLimit: config.RateLimitConfig{MaxAttempts: 5, WindowMin: 15, LockoutMin: 15},
		Email:     config.EmailConfig{RSVPURL: "https://conf.example.org/rsvp", OrganizerContact: "the organizers"},
		Presenter: config.PresenterConfig{MaxBytes: 1 << 20, PhotoDir: filepath.Join(dir, "photos")},
	}
}

func newApp(t *testing.T, cfg *config.Config) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, a.Router()
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealth(t *testing.T) {
	_, r := newApp(t, testConfig(t))
	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "sqlite", body["db"])
}

func TestRegisterLoginLogout(t *testing.T) {
	_, r := newApp(t, testConfig(t))

	payload, _ := json.Marshal(map[string]any{
		"email": "Ada@Example.com", "lastName": "Lovelace", "proxyEmail": "ada@example.com",
		"question1": "yes", "question2": "no",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/registrations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w, body := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	pin, _ := body["loginPin"].(string)
	require.NotEmpty(t, pin)

	q := url.Values{"email": {"ada@example.com"}, "pin": {pin}}
	w, body = serve(r, httptest.NewRequest(http.MethodGet, "/api/registrations/login?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	csrf, _ := body["csrfToken"].(string)
	require.NotEmpty(t, csrf)
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)
	_, body = serve(r, req)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, false, body["isOrganizer"])

	// Non-organizers cannot reach organizer routes.
	req = httptest.NewRequest(http.MethodGet, "/api/rsvp/emails", nil)
	req.AddCookie(cookie)
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/session/logout", nil)
	req.AddCookie(cookie)
	w, _ = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code, "logout without csrf token")

	req = httptest.NewRequest(http.MethodPost, "/api/session/logout", nil)
	req.AddCookie(cookie)
	req.Header.Set(session.CSRFHeader, csrf)
	req.Header.Set("Origin", origin)
	w, body = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["ok"])

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(cookie)
	_, body = serve(r, req)
	assert.Equal(t, false, body["authenticated"])
}

func TestPromotedOrganizerSeesEmailLog(t *testing.T) {
	a, r := newApp(t, testConfig(t))
	ctx := context.Background()

	in := map[string]any{
		"email": "org@example.com", "lastName": "Org", "proxyEmail": "org@example.com",
		"question1": "a", "question2": "b",
	}
	payload, _ := json.Marshal(in)
	req := httptest.NewRequest(http.MethodPost, "/api/registrations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w, body := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(body["id"].(float64))
	require.NoError(t, a.RegistrationRepo.Promote(ctx, "org@example.com"))

	sess, err := a.Sessions.Create(ctx, id)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/rsvp/emails", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	w, body = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, body["emails"])
}

func TestEdgeSealRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.InternalSecret = "edge-secret"
	_, r := newApp(t, cfg)

	w, _ := serve(r, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	seal, err := middleware.MintEdgeSeal("edge-secret", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.Header.Set(middleware.EdgeSealHeader, seal)
	w, body := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1<<20), body["presenterMaxBytes"])

	w, _ = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health is outside the sealed group")
}

func TestAnonymousAccess(t *testing.T) {
	_, r := newApp(t, testConfig(t))

	w, _ := serve(r, httptest.NewRequest(http.MethodPost, "/api/presenters/1/photo", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "photo upload requires a session")

	w, _ = serve(r, httptest.NewRequest(http.MethodGet, "/api/registrations/1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = serve(r, httptest.NewRequest(http.MethodGet, "/api/registrations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/api/validation-tables/country", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["values"])
}

func createRegistration(t *testing.T, r *gin.Engine, email string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"email": email, "lastName": "Doe", "proxyEmail": email, "question1": "a", "question2": "b",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/registrations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w, _ := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// failedLogins sends n wrong-PIN logins from one TCP peer, each with a different X-Forwarded-For.
func failedLogins(r *gin.Engine, n int) []int {
	codes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		q := url.Values{"email": {"guess@example.com"}, "pin": {"00000000"}}
		req := httptest.NewRequest(http.MethodGet, "/api/registrations/login?"+q.Encode(), nil)
		req.RemoteAddr = "203.0.113.5:40000"
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i+1))
		w, _ := serve(r, req)
		codes = append(codes, w.Code)
	}
	return codes
}

func TestLoginLimiterIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	_, r := newApp(t, testConfig(t))
	createRegistration(t, r, "guess@example.com")

	codes := failedLogins(r, 12)
	for i, code := range codes {
		if i < 5 {
			assert.Equal(t, http.StatusNotFound, code, "attempt %d", i+1)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, code, "attempt %d", i+1)
		}
	}
}

func TestLoginLimiterHonoursTrustedProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.TrustedProxies = []string{"203.0.113.5"}
	_, r := newApp(t, cfg)
	createRegistration(t, r, "guess@example.com")

	for i, code := range failedLogins(r, 8) {
		assert.Equal(t, http.StatusNotFound, code, "attempt %d keyed by its forwarded address", i+1)
	}
}

func TestLostPinWithoutRelayIsNotReportedSent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Email.Send = true
	a, r := newApp(t, cfg)
	createRegistration(t, r, "ada@example.com")

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/api/registrations/lost-pin?email=ada@example.com", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to send pin", body["error"])
	assert.Nil(t, body["sent"])

	logs, err := a.EmailLogs.List(context.Background(), "lost_pin", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "failed", logs[0].Status)
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	a, r := newApp(t, testConfig(t))
	require.NoError(t, a.DB.Close())

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "database unavailable", body["error"])
}
