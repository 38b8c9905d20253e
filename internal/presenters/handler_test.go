package presenters

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confreg/backend/internal/registrations"
	"github.com/confreg/backend/internal/session"
	"github.com/confreg/backend/internal/testutil"
	"github.com/confreg/backend/pkg/storage"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type env struct {
	router *gin.Engine
	repo   *registrations.Repository
	id     int64
}

// asPrincipal stands in for the session middleware: X-Test-Reg carries the registration id,
// X-Test-Org marks an organizer.
func asPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v := c.GetHeader("X-Test-Reg"); v != "" {
			id, _ := strconv.ParseInt(v, 10, 64)
			p := session.Principal{RegistrationID: id, IsOrganizer: c.GetHeader("X-Test-Org") == "1"}
			c.Request = c.Request.WithContext(session.WithPrincipal(c.Request.Context(), p))
		}
		c.Next()
	}
}

func newEnv(t *testing.T, maxBytes int64) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	repo := registrations.NewRepository(db)
	svc := registrations.NewService(repo, nil, nil)
	in, err := registrations.ParseInput(map[string]any{
		"email": "p@b.com", "lastName": "Presenter", "proxyEmail": "p@b.com", "question1": "x", "question2": "y", "isPresenter": true,
	})
	require.NoError(t, err)
	created, err := svc.Create(context.Background(), in, session.Principal{})
	require.NoError(t, err)

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	h := NewHandler(repo, store, maxBytes, nil)
	r := gin.New()
	r.Use(asPrincipal())
	r.GET("/api/config", h.Config)
	r.GET("/api/presenters/:id/photo", h.Photo)
	r.POST("/api/presenters/:id/photo", h.Upload)
	return &env{router: r, repo: repo, id: created.ID}
}

func (e *env) upload(t *testing.T, asID int64, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(FormField, "me.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/presenters/"+strconv.FormatInt(e.id, 10)+"/photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-Reg", strconv.FormatInt(asID, 10))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) get(asID int64, organizer bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/presenters/"+strconv.FormatInt(e.id, 10)+"/photo", nil)
	if asID > 0 {
		req.Header.Set("X-Test-Reg", strconv.FormatInt(asID, 10))
	}
	if organizer {
		req.Header.Set("X-Test-Org", "1")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestUploadAndDownload(t *testing.T) {
	e := newEnv(t, 1024)

	assert.Equal(t, http.StatusNotFound, e.get(e.id, false).Code, "no photo yet")

	w := e.upload(t, e.id, pngBytes)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Regexp(t, `^presenters/`+strconv.FormatInt(e.id, 10)+`/[0-9a-f-]{36}\.png$`, body["presenterPhotoPath"])

	w = e.get(e.id, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Equal(t, pngBytes, w.Body.Bytes())

	w = e.get(999, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
}

func TestPhotoAccessControl(t *testing.T) {
	e := newEnv(t, 1024)
	assert.Equal(t, http.StatusForbidden, e.get(e.id+1, false).Code)
	assert.Equal(t, http.StatusForbidden, e.get(0, false).Code)
	assert.Equal(t, http.StatusForbidden, e.upload(t, e.id+1, pngBytes).Code)
}

func TestPhotoRejectsUnsafeStoredPath(t *testing.T) {
	e := newEnv(t, 1024)
	for _, p := range []string{"../../etc/passwd", "/etc/passwd"} {
		require.NoError(t, e.repo.SetPhotoPath(context.Background(), e.id, p))
		assert.Equal(t, http.StatusBadRequest, e.get(e.id, true).Code, p)
	}
}

func TestUploadValidation(t *testing.T) {
	e := newEnv(t, 1024)
	assert.Equal(t, http.StatusBadRequest, e.upload(t, e.id, []byte("just some text, not an image")).Code)

	big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{1}, 2048)...)
	assert.Equal(t, http.StatusRequestEntityTooLarge, e.upload(t, e.id, big).Code)
}

func TestConfigEndpoint(t *testing.T) {
	e := newEnv(t, 5<<20)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"presenterMaxBytes":5242880}`, w.Body.String())
}
