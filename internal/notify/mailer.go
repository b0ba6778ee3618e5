package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/wneessen/go-mail"

	"brewboard/internal/config"
	"brewboard/internal/domain"
	"brewboard/internal/engine"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatch        = 20
)

// Mailer tails unsent contact messages and forwards them over SMTP.
type Mailer struct {
	engine engine.Engine
	cfg    config.MailConfig
	client *mail.Client
	now    func() time.Time
}

// StartMailer launches the contact-form notifier when mail is configured.
// Returns false when the mail block is absent or incomplete.
func StartMailer(e engine.Engine) (bool, error) {
	if e.Config == nil || !e.Config.Mail.Enabled() {
		return false, nil
	}
	m, err := NewMailer(e, e.Config.Mail)
	if err != nil {
		return false, err
	}
	go m.Run(context.Background())
	return true, nil
}

func NewMailer(e engine.Engine, cfg config.MailConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithSSL(),
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail client: %w", err)
	}
	return &Mailer{engine: e, cfg: cfg, client: client, now: time.Now}, nil
}

// Run polls until ctx is cancelled.
func (m *Mailer) Run(ctx context.Context) {
	interval := defaultPollInterval
	if m.cfg.PollSeconds > 0 {
		interval = time.Duration(m.cfg.PollSeconds) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := m.DeliverPending(ctx); err != nil {
			log.Printf("notify: deliver failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DeliverPending sends every unnotified contact message and marks it
// delivered. A send failure stops the batch; the remaining messages are
// picked up on the next poll.
func (m *Mailer) DeliverPending(ctx context.Context) error {
	msgs, err := m.engine.Repo.ListUnnotifiedContactMessages(ctx, defaultBatch)
	if err != nil {
		return err
	}
	for _, cm := range msgs {
		if err := m.send(cm); err != nil {
			return fmt.Errorf("send %s: %w", cm.ID, err)
		}
		notifiedAt := m.now().UTC().Format(time.RFC3339)
		if err := m.engine.Repo.MarkContactMessageNotified(ctx, cm.ID, notifiedAt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mailer) send(cm domain.ContactMessage) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return err
	}
	if err := msg.To(m.cfg.To); err != nil {
		return err
	}
	if cm.Email != "" {
		if err := msg.ReplyTo(cm.Email); err != nil {
			return err
		}
	}
	msg.Subject(fmt.Sprintf("Contact form: %s", cm.Name))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("From: %s <%s>\nReceived: %s\n\n%s\n", cm.Name, cm.Email, cm.ReceivedAt, cm.Message))
	return m.client.DialAndSend(msg)
}
