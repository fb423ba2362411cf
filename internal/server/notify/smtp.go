package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/dmitrijs2005/safepass/internal/logging"
	mail "github.com/go-mail/mail"
)

// SMTPConfig holds the mail transport settings.
type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Pass               string
	From               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// dialAndSend is a seam for tests.
var dialAndSend = func(d *mail.Dialer, m ...*mail.Message) error {
	return d.DialAndSend(m...)
}

// SMTPNotifier renders messages and sends them through an SMTP server.
type SMTPNotifier struct {
	cfg      SMTPConfig
	renderer *Renderer
	logger   logging.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, renderer *Renderer, logger logging.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, renderer: renderer, logger: logger.With("module", "notify.smtp")}
}

func (s *SMTPNotifier) Send(ctx context.Context, to string, kind Kind, subs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.renderer.Render(kind, subs)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := dialAndSend(s.dialer(), m); err != nil {
		s.logger.Error(ctx, "smtp send failed", "kind", string(kind), "to", logging.MaskEmail(to), "error", err)
		return fmt.Errorf("smtp send: %w", err)
	}

	s.logger.Info(ctx, "smtp send ok", "kind", string(kind), "to", logging.MaskEmail(to))
	return nil
}

func (s *SMTPNotifier) dialer() *mail.Dialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}
	if s.cfg.Timeout > 0 {
		d.Timeout = s.cfg.Timeout
	}

	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto"/"starttls": go-mail negotiates STARTTLS when offered
	}
	return d
}
