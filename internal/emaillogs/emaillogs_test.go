package emaillogs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/internal/testutil"
)

func seed(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	for _, el := range []*models.EmailLog{
		{EmailType: "rsvp_invite", RecipientEmail: "a@b.com", Subject: "Invite", Status: models.EmailLogStatusSent},
		{EmailType: "rsvp_invite", RecipientEmail: "c@d.com", Subject: "Invite", Status: models.EmailLogStatusFailed, ErrorMessage: "mailbox full"},
		{EmailType: "lost_pin", RecipientEmail: "a@b.com", Subject: "Your PIN", Status: models.EmailLogStatusLogged},
	} {
		require.NoError(t, repo.Record(ctx, el))
		assert.Positive(t, el.ID)
	}
}

func TestRepositoryList(t *testing.T) {
	repo := NewRepository(testutil.NewDB(t))
	seed(t, repo)
	ctx := context.Background()

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "lost_pin", all[0].EmailType, "newest first")
	assert.False(t, all[0].CreatedAt.IsZero())

	invites, err := repo.List(ctx, "rsvp_invite", 0)
	require.NoError(t, err)
	require.Len(t, invites, 2)
	assert.Equal(t, "mailbox full", invites[0].ErrorMessage)

	one, err := repo.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	none, err := repo.List(ctx, "rsvp_reminder", 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := NewRepository(testutil.NewDB(t))
	seed(t, repo)
	r := gin.New()
	r.GET("/api/rsvp/emails", NewHandler(repo, nil).List)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rsvp/emails?type=lost_pin", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Emails []models.EmailLog `json:"emails"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Emails, 1)
	assert.Equal(t, "a@b.com", body.Emails[0].RecipientEmail)
	assert.Equal(t, models.EmailLogStatusLogged, body.Emails[0].Status)
}
