package notification

import (
	"fmt"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Sender abstracts the SMTP connection so Mailer can be exercised without a server
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type MailerOptions struct {
	Sender  Sender
	From    string
	SiteURL string
	Logger  *zap.Logger
}

// Mailer renders notifications and delivers them as multipart email
type Mailer struct {
	MailerOptions
}

// NewSMTPSender returns a gomail dialer for host:port
func NewSMTPSender(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

func NewMailer(option MailerOptions) (*Mailer, error) {
	if option.Sender == nil {
		return nil, fmt.Errorf("nil Sender is invalid")
	}
	if option.From == "" {
		return nil, fmt.Errorf("Empty from is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Mailer{
		MailerOptions: option,
	}, nil
}

// Deliver renders msg and sends it to msg.Recipient
func (m *Mailer) Deliver(msg *Message) error {
	rendered, err := Render(msg, m.SiteURL)
	if err != nil {
		return extErrors.Wrap(err, "Cannot render notification")
	}

	e := gomail.NewMessage()
	e.SetHeader("From", m.From)
	e.SetHeader("To", msg.Recipient)
	e.SetHeader("Subject", rendered.Subject)
	e.SetBody("text/plain", rendered.Text)
	e.AddAlternative("text/html", rendered.HTML)

	if err := m.Sender.DialAndSend(e); err != nil {
		return extErrors.Wrap(err, "Cannot send notification email")
	}
	m.Logger.Debug("Notification delivered",
		zap.String("Recipient", msg.Recipient),
		zap.String("Template", string(msg.Template)),
	)
	return nil
}
