package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"coedit/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "bot@example.com", Password: "pw"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := m.SendInvite(context.Background(), Invite{
		To:           "ada@example.com",
		InviterName:  "Grace",
		ResourceKind: "file",
		ResourceName: "main.go",
		Role:         "editor",
		Link:         "http://localhost:5173/editor/f1",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)

	msg := string(gotMsg)
	assert.Contains(t, msg, "Subject: You've been invited to collaborate on main.go\r\n")
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.Contains(t, msg, "Grace has invited you")
	assert.Contains(t, msg, `href="http://localhost:5173/editor/f1"`)
	assert.False(t, strings.Contains(strings.ReplaceAll(msg, "\r\n", ""), "\n"))
}

func TestSMTPMailerEscapesNames(t *testing.T) {
	_, body, err := renderInvite(Invite{ResourceName: "<script>", ResourceKind: "file", Role: "viewer"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestSMTPMailerError(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25})
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := m.SendInvite(context.Background(), Invite{To: "a@example.com", ResourceName: "x"})
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer(logging.Nop()).SendInvite(context.Background(), Invite{To: "a@example.com"}))
}
