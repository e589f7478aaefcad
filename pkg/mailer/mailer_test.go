package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	flowlog "github.com/dukex/flowline/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
		gotMsg  string
	)

	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "bot", Password: "secret", From: "noreply@example.com"})
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)

		return nil
	}

	err := m.Send(context.Background(), Message{
		To:      "a@b.com, c@d.com",
		Subject: "Welcome\r\nBcc: evil@x.com",
		Body:    "line1\nline2",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"a@b.com", "c@d.com"}, gotTo)
	assert.Contains(t, gotMsg, "To: a@b.com, c@d.com\r\n")
	assert.Contains(t, gotMsg, "Subject: Welcome  Bcc: evil@x.com\r\n")
	assert.Contains(t, gotMsg, "Date: Fri, 02 Jan 2026 03:04:05 +0000\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\nline1\r\nline2")
}

func TestSMTPMailer_SendErrors(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "noreply@example.com"})
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := m.Send(context.Background(), Message{To: " "})
	require.ErrorIs(t, err, ErrRecipientRequired)

	err = m.Send(context.Background(), Message{To: "a@b.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLogMailer_Send(t *testing.T) {
	m := NewLogMailer(flowlog.Discard())

	require.NoError(t, m.Send(context.Background(), Message{To: "a@b.com", Subject: "hi"}))
	require.ErrorIs(t, m.Send(context.Background(), Message{}), ErrRecipientRequired)
}
