// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package notify delivers booking and purchase mails, either directly over
// SMTP or as jobs published to NATS for a mail relay.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow"
)

// Template names.
const (
	TemplateBookingClient = "booking_client"
	TemplateBookingAdmin  = "booking_admin"
	TemplateDelivery      = "delivery"
)

// ErrUnknownTemplate is returned for a template name that is not embedded.
var ErrUnknownTemplate = errors.New("unknown mail template")

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates renders the embedded mail templates.
type Templates struct {
	set map[string]*template.Template
}

// LoadTemplates parses the embedded templates.
func LoadTemplates() (*Templates, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	t := &Templates{set: make(map[string]*template.Template, len(entries))}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".tmpl")
		parsed, err := template.New(name).ParseFS(templateFS, "templates/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		t.set[name] = parsed
	}
	return t, nil
}

// Render returns the subject and HTML body of a template.
func (t *Templates) Render(name string, data map[string]interface{}) (string, string, error) {
	tmpl, ok := t.set[name]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	var subject, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier implements interfaces.Notifier over SMTP.
type SMTPNotifier struct {
	config    SMTPConfig
	templates *Templates
	send      sendFunc
	now       func() time.Time
	logger    *zap.Logger
}

// NewSMTPNotifier creates an SMTP notifier.
func NewSMTPNotifier(cfg SMTPConfig, templates *Templates) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("smtp host and from address are required")
	}
	if templates == nil {
		return nil, errors.New("templates are required")
	}
	return &SMTPNotifier{
		config:    cfg,
		templates: templates,
		send:      smtp.SendMail,
		now:       time.Now,
		logger:    logger.GetLogger().Named("notify"),
	}, nil
}

// Send implements interfaces.Notifier.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, name string, data map[string]interface{}) error {
	if recipient == "" {
		return workflow.Permanent(errors.New("recipient is required"))
	}
	subject, body, err := n.templates.Render(name, data)
	if err != nil {
		return workflow.Permanent(err)
	}
	msg := n.compose(recipient, subject, body)

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}
	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))

	done := make(chan error, 1)
	go func() { done <- n.send(addr, auth, n.config.From, []string{recipient}, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s mail: %w", name, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	n.logger.Info("mail sent", zap.String("template", name), zap.String("recipient", recipient))
	return nil
}

func (n *SMTPNotifier) compose(recipient, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), n.config.Host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.Bytes()
}
