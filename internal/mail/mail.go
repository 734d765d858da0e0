// Package mail delivers collaborator invitations.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"coedit/internal/logging"

	"go.uber.org/zap"
)

// Invite tells a user they were added to a file or project.
type Invite struct {
	To           string
	InviterName  string
	ResourceKind string // "file" or "project"
	ResourceName string
	Role         string
	Link         string
}

type Mailer interface {
	SendInvite(ctx context.Context, inv Invite) error
}

var inviteTmpl = template.Must(template.New("invite").Parse(`<h2>Collaboration Invitation</h2>
<p>{{if .InviterName}}{{.InviterName}} has invited you{{else}}You have been invited{{end}} to collaborate on the {{.ResourceKind}} "{{.ResourceName}}" as a {{.Role}}.</p>
<p>Click the link below to open it:</p>
<a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background-color: #4d84ff; color: white; text-decoration: none; border-radius: 5px;">Open {{.ResourceKind}}</a>
<p>If you can't click the button, copy and paste this URL in your browser:</p>
<p>{{.Link}}</p>
`))

func renderInvite(inv Invite) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := inviteTmpl.Execute(&buf, inv); err != nil {
		return "", "", fmt.Errorf("rendering invite: %w", err)
	}
	return fmt.Sprintf("You've been invited to collaborate on %s", inv.ResourceName), buf.String(), nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// SMTPMailer sends HTML mail with PLAIN auth, the From address being the
// account user.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendInvite(_ context.Context, inv Invite) error {
	subject, body, err := renderInvite(inv)
	if err != nil {
		return err
	}

	headers := []string{
		"From: " + m.cfg.User,
		"To: " + inv.To,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	msg := []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" +
		strings.ReplaceAll(body, "\n", "\r\n"))

	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.User, []string{inv.To}, msg); err != nil {
		return fmt.Errorf("sending invite to %s: %w", inv.To, err)
	}
	return nil
}

// LogMailer only logs invitations. It is used when no SMTP host is set.
type LogMailer struct {
	logger *logging.Logger
}

func NewLogMailer(logger *logging.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendInvite(ctx context.Context, inv Invite) error {
	m.logger.WithRequestID(ctx).Info("invite not mailed, no SMTP host configured",
		zap.String("to", inv.To),
		zap.String("resource", inv.ResourceName),
		zap.String("link", inv.Link))
	return nil
}
