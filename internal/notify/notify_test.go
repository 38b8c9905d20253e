package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confreg/backend/internal/models"
	"github.com/confreg/backend/pkg/mailer"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[msg.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type memRecorder struct {
	logs []*models.EmailLog
}

func (m *memRecorder) Record(_ context.Context, el *models.EmailLog) error {
	m.logs = append(m.logs, el)
	return nil
}

func TestBuiltinTemplatesParse(t *testing.T) {
	for _, name := range []string{models.EmailTypeRSVPInvite, models.EmailTypeRSVPReminder, models.EmailTypeLostPin} {
		tpl, err := LoadTemplate("", name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, tpl.Subject)
		assert.Contains(t, tpl.Body, "{{pin}}")
	}
	_, err := LoadTemplate("", "nope")
	assert.Error(t, err)
}

func TestTemplateOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lost_pin.txt"),
		[]byte("Subject: PIN for {{email}}\r\n\r\nYour PIN is {{pin}}.\r\n"), 0o600))

	tpl, err := LoadTemplate(dir, models.EmailTypeLostPin)
	require.NoError(t, err)
	subject, body := tpl.Render(Vars{PIN: "01234567", Email: "a@b.com"})
	assert.Equal(t, "PIN for a@b.com", subject)
	assert.Equal(t, "Your PIN is 01234567.\n", body)

	// Files missing from the override dir fall back to the built-in set.
	_, err = LoadTemplate(dir, models.EmailTypeRSVPInvite)
	assert.NoError(t, err)
}

func TestParseTemplateRejectsMissingSubject(t *testing.T) {
	_, err := parseTemplate("x", "Hello {{name}}\n")
	assert.Error(t, err)
	_, err = parseTemplate("x", "Subject: hi\n\n   \n")
	assert.Error(t, err)
}

func TestCheckConfig(t *testing.T) {
	n := New(Config{}, &fakeSender{}, nil, nil)
	assert.ErrorIs(t, n.CheckConfig(), ErrRSVPURLMissing)

	n = New(Config{Send: true, RSVPURL: "https://x"}, &fakeSender{}, nil, nil)
	assert.ErrorIs(t, n.CheckConfig(), ErrSMTPMissing)

	n = New(Config{Send: false, RSVPURL: "https://x"}, &fakeSender{}, nil, nil)
	assert.NoError(t, n.CheckConfig())
}

func TestDeliverAllCollectsFailures(t *testing.T) {
	sender := &fakeSender{fail: map[string]error{"bad@example.com": errors.New("mailbox unavailable")}}
	rec := &memRecorder{}
	n := New(Config{Send: true, SMTPServer: "smtp:25", RSVPURL: "https://conf.example.org/rsvp"}, sender, rec, nil)
	tpl, err := n.Template(models.EmailTypeRSVPInvite)
	require.NoError(t, err)

	sum := n.DeliverAll(context.Background(), tpl, []Recipient{
		{RegistrationID: 1, Email: "a@example.com", Name: "Ann Lee", PIN: "11111111"},
		{RegistrationID: 2, Email: "bad@example.com", Name: "Bo", PIN: "22222222"},
	})

	assert.Equal(t, 2, sum.Attempted)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 0, sum.Logged)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, Failure{Email: "bad@example.com", Error: "mailbox unavailable"}, sum.Failures[0])

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.Contains(sender.sent[0].Body, "Hello Ann Lee"))
	assert.Contains(t, sender.sent[0].Body, "11111111")
	assert.Contains(t, sender.sent[0].Body, "https://conf.example.org/rsvp")

	require.Len(t, rec.logs, 2)
	assert.Equal(t, models.EmailLogStatusSent, rec.logs[0].Status)
	assert.Equal(t, models.EmailLogStatusFailed, rec.logs[1].Status)
	assert.Equal(t, "mailbox unavailable", rec.logs[1].ErrorMessage)
	require.NotNil(t, rec.logs[1].RegistrationID)
	assert.Equal(t, int64(2), *rec.logs[1].RegistrationID)
}

func TestDeliverLogOnly(t *testing.T) {
	rec := &memRecorder{}
	n := New(Config{RSVPURL: "https://x"}, mailer.NewLogSender(nil), rec, nil)
	tpl, err := n.Template(models.EmailTypeRSVPReminder)
	require.NoError(t, err)

	sum := n.DeliverAll(context.Background(), tpl, []Recipient{{Email: "a@example.com", PIN: "1"}})
	assert.Equal(t, Summary{Attempted: 1, Logged: 1, Failures: []Failure{}}, sum)
	require.Len(t, rec.logs, 1)
	assert.Nil(t, rec.logs[0].RegistrationID)
	assert.Equal(t, models.EmailLogStatusLogged, rec.logs[0].Status)
}

func TestDeliverWithoutRelayFails(t *testing.T) {
	sender := &fakeSender{}
	rec := &memRecorder{}
	n := New(Config{Send: true}, sender, rec, nil)
	tpl, err := n.Template(models.EmailTypeLostPin)
	require.NoError(t, err)

	status, err := n.Deliver(context.Background(), tpl, Recipient{RegistrationID: 3, Email: "a@example.com", PIN: "12345678"})
	assert.ErrorIs(t, err, ErrSMTPMissing)
	assert.Equal(t, models.EmailLogStatusFailed, status)
	assert.Empty(t, sender.sent, "nothing handed to the sender")
	require.Len(t, rec.logs, 1)
	assert.Equal(t, models.EmailLogStatusFailed, rec.logs[0].Status)
	assert.Equal(t, ErrSMTPMissing.Error(), rec.logs[0].ErrorMessage)
}

func TestDeliverWithoutRSVPURL(t *testing.T) {
	sender := &fakeSender{}
	n := New(Config{Send: true, SMTPServer: "smtp:25"}, sender, nil, nil)
	tpl, err := n.Template(models.EmailTypeLostPin)
	require.NoError(t, err)

	status, err := n.Deliver(context.Background(), tpl, Recipient{Email: "a@example.com", Name: "Ann", PIN: "12345678"})
	require.NoError(t, err)
	assert.Equal(t, models.EmailLogStatusSent, status)
	require.Len(t, sender.sent, 1)
	body := sender.sent[0].Body
	assert.Contains(t, body, "Sign in at the conference registration site with")
	assert.NotContains(t, body, "at  with")
	assert.NotContains(t, body, "{{rsvpUrl}}")
}
