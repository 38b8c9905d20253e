package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSMTPSenderParsesServer(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Server: "relay.example.com:2525", From: "noreply@example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "relay.example.com", s.host)
	assert.Equal(t, 2525, s.port)

	s, err = NewSMTPSender(SMTPConfig{Server: "relay.example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 25, s.port)

	_, err = NewSMTPSender(SMTPConfig{}, nil)
	assert.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Server: "relay:abc"}, nil)
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	require.NoError(t, s.Send(context.Background(), Message{To: "a@b.com", Subject: "Hi", Body: "secret 12345678"}))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "a@b.com", entry.ContextMap()["to"])
	assert.NotContains(t, entry.ContextMap(), "body", "body is not logged")
}
