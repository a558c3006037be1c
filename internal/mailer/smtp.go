package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	texttemplate "text/template"
	"time"

	"github.com/go-mail/mail/v2"
)

//go:embed "templates"
var templateFS embed.FS

type SMTPMailer struct {
	dialer *mail.Dialer
	sender string
}

func NewSMTPMailer(host string, port int, username, password, sender string) *SMTPMailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return &SMTPMailer{
		dialer: dialer,
		sender: sender,
	}
}

// Send renders the subject, plainBody and htmlBody blocks of templateFile and delivers the result.
func (m *SMTPMailer) Send(recipient, templateFile string, data any) error {
	subject, plainBody, htmlBody, err := render(templateFile, data)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody)
	msg.AddAlternative("text/html", htmlBody)

	for i := 1; i <= 3; i++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("send %s to %s: %w", templateFile, recipient, err)
}

func render(templateFile string, data any) (subject, plainBody, htmlBody string, err error) {
	pattern := "templates/" + templateFile

	textTmpl, err := texttemplate.New("email").ParseFS(templateFS, pattern)
	if err != nil {
		return "", "", "", err
	}

	subject, err = execute(textTmpl, "subject", data)
	if err != nil {
		return "", "", "", err
	}

	plainBody, err = execute(textTmpl, "plainBody", data)
	if err != nil {
		return "", "", "", err
	}

	htmlTmpl, err := htmltemplate.New("email").ParseFS(templateFS, pattern)
	if err != nil {
		return "", "", "", err
	}

	htmlBody, err = execute(htmlTmpl, "htmlBody", data)
	if err != nil {
		return "", "", "", err
	}

	return subject, plainBody, htmlBody, nil
}

type executor interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

func execute(tmpl executor, name string, data any) (string, error) {
	buf := new(bytes.Buffer)

	err := tmpl.ExecuteTemplate(buf, name, data)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
