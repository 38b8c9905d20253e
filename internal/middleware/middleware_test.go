package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confreg/backend/internal/session"
)

const uiOrigin = "https://conf.example.org"

func init() { gin.SetMode(gin.TestMode) }

type roles map[int64]bool

func (r roles) IsOrganizer(_ context.Context, id int64) (bool, error) { return r[id], nil }

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	store := session.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	return session.NewManager(store, time.Hour)
}

func newRouter(m *session.Manager, r roles) *gin.Engine {
	router := gin.New()
	router.Use(Session(m, r, uiOrigin, nil))
	echo := func(c *gin.Context) {
		p, ok := session.PrincipalFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"authenticated": ok, "id": p.RegistrationID, "organizer": p.IsOrganizer})
	}
	router.GET("/thing", echo)
	router.PUT("/thing", echo)
	router.GET("/admin", RequireOrganizer(), echo)
	router.GET("/mine", RequireSession(), echo)
	return router
}

func do(router http.Handler, method, path, cookie string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cookie})
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSessionGuardCSRFAndOrigin(t *testing.T) {
	m := newManager(t)
	router := newRouter(m, roles{})
	sess, err := m.Create(context.Background(), 7)
	require.NoError(t, err)

	// Safe methods skip CSRF checks but still resolve the principal.
	w := do(router, http.MethodGet, "/thing", sess.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":7`)

	w = do(router, http.MethodPut, "/thing", sess.ID, map[string]string{"Origin": uiOrigin})
	assert.Equal(t, http.StatusForbidden, w.Code, "missing token")

	w = do(router, http.MethodPut, "/thing", sess.ID, map[string]string{"Origin": uiOrigin, session.CSRFHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code, "mismatched token")

	w = do(router, http.MethodPut, "/thing", sess.ID, map[string]string{"Origin": "https://evil.example", session.CSRFHeader: sess.CSRFToken})
	assert.Equal(t, http.StatusForbidden, w.Code, "foreign origin")

	w = do(router, http.MethodPut, "/thing", sess.ID, map[string]string{"Origin": uiOrigin, session.CSRFHeader: sess.CSRFToken})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionGuardStaleCookie(t *testing.T) {
	m := newManager(t)
	router := newRouter(m, roles{})

	w := do(router, http.MethodPut, "/thing", "no-such-session", map[string]string{"Origin": uiOrigin})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodGet, "/thing", "no-such-session", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	// Unsafe requests without any cookie are left to the route's own guards.
	w = do(router, http.MethodPut, "/thing", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionGuardAfterLogout(t *testing.T) {
	m := newManager(t)
	router := newRouter(m, roles{})
	sess, err := m.Create(context.Background(), 3)
	require.NoError(t, err)
	require.NoError(t, m.Destroy(context.Background(), sess.ID))

	w := do(router, http.MethodPut, "/thing", sess.ID, map[string]string{"Origin": uiOrigin, session.CSRFHeader: sess.CSRFToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireOrganizer(t *testing.T) {
	m := newManager(t)
	router := newRouter(m, roles{1: true})
	org, err := m.Create(context.Background(), 1)
	require.NoError(t, err)
	member, err := m.Create(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/admin", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/admin", member.ID, nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/admin", org.ID, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/mine", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/mine", member.ID, nil).Code)
}

func TestEdgeSeal(t *testing.T) {
	router := gin.New()
	router.Use(EdgeSeal("s3cret"))
	router.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/x", "", nil).Code)

	bad, err := MintEdgeSeal("other", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/x", "", map[string]string{EdgeSealHeader: bad}).Code)

	expired, err := MintEdgeSeal("s3cret", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/x", "", map[string]string{EdgeSealHeader: expired}).Code)

	good, err := MintEdgeSeal("s3cret", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/x", "", map[string]string{EdgeSealHeader: good}).Code)
}

func TestEdgeSealDisabled(t *testing.T) {
	router := gin.New()
	router.Use(EdgeSeal(""))
	router.GET("/api/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/x", "", nil).Code)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS(uiOrigin + "/"))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(router, http.MethodOptions, "/x", "", map[string]string{"Origin": uiOrigin})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, uiOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), session.CSRFHeader)

	w = do(router, http.MethodGet, "/x", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
