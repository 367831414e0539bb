// Package email sends notification mail via SMTP.
package email

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
)

// Config holds SMTP configuration.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending. With no SMTP host configured every send
// returns an error; callers treat mail as strictly best effort.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
	}
}

// IsConfigured returns true if email is configured.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email.
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// NewDoubtData holds the fields rendered into the new-doubt notification.
type NewDoubtData struct {
	TeacherName string
	StudentName string
	Subject     string
	Topic       string
	Description string
}

// SendNewDoubtEmail notifies a teacher that a student submitted a doubt.
func (s *Service) SendNewDoubtEmail(to string, data NewDoubtData) error {
	body, err := renderTemplate(newDoubtTemplate, data)
	if err != nil {
		return fmt.Errorf("render new doubt template: %w", err)
	}
	subject := fmt.Sprintf("New doubt from %s: %s", data.StudentName, data.Subject)
	return s.SendEmail([]string{to}, subject, body)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const newDoubtTemplate = `Hi {{.TeacherName}},

{{.StudentName}} just asked a new doubt and is waiting for your review.

Subject: {{.Subject}}
Topic: {{.Topic}}

{{.Description}}

Open your dashboard to accept or reject it.
`
