package delivery

import (
	"context"
	"errors"
	"fmt"

	goOTP "github.com/MrEthical07/goOTP"
	"gopkg.in/gomail.v2"
)

// Sender is implemented by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig describes the relay and envelope of outgoing code emails.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
	Subject  string `env:"SMTP_SUBJECT" envDefault:"Your verification code"`
}

// SMTPDeliverer emails the code with a plain-text and an HTML part.
type SMTPDeliverer struct {
	sender  Sender
	from    string
	subject string
}

var _ goOTP.Deliverer = (*SMTPDeliverer)(nil)

// NewSMTPDeliverer dials cfg.Host for every message.
func NewSMTPDeliverer(cfg SMTPConfig) (*SMTPDeliverer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address required")
	}
	return NewSMTPDelivererWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.Subject), nil
}

func NewSMTPDelivererWithSender(sender Sender, from, subject string) *SMTPDeliverer {
	if subject == "" {
		subject = "Your verification code"
	}
	return &SMTPDeliverer{sender: sender, from: from, subject: subject}
}

// Deliver sends one message. gomail has no context support, so ctx only
// bounds how long Deliver waits; a send already in flight is not aborted.
func (d *SMTPDeliverer) Deliver(ctx context.Context, email, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", d.subject)
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is %s. It expires in a few minutes.", code))
	m.AddAlternative("text/html", fmt.Sprintf(`
		<p>Your verification code is:</p>
		<h2>%s</h2>
		<p>If you did not request this code, you can ignore this email.</p>
	`, code))

	done := make(chan error, 1)
	go func() {
		done <- d.sender.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send verification email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
