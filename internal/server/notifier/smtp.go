package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ErrNoRecipient is returned when the user has no email address on file.
var ErrNoRecipient = errors.New("no recipient address")

// sendMail is a seam for testing smtp.SendMail.
var sendMail = smtp.SendMail

// SMTPConfig describes the outgoing mail relay.
type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// Mailer delivers messages as plain-text email through an SMTP relay.
type Mailer struct {
	cfg SMTPConfig
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Notify(ctx context.Context, msg Message) error {
	if msg.Email == "" {
		return fmt.Errorf("user %s: %w", msg.UserID, ErrNoRecipient)
	}

	body, err := m.compose(msg)
	if err != nil {
		return fmt.Errorf("compose mail: %w", err)
	}

	var auth sasl.Client
	if m.cfg.Username != "" {
		auth = sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	}

	// smtp.SendMail does not take a context; the send keeps running in the
	// background if ctx expires first.
	send := sendMail
	done := make(chan error, 1)
	go func() {
		done <- send(m.cfg.Addr, auth, m.cfg.From, []string{msg.Email}, bytes.NewReader(body))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mailer) compose(msg Message) ([]byte, error) {
	var h mail.Header
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	h.SetDate(sentAt)
	h.SetAddressList("From", []*mail.Address{{Name: "MoodCycle", Address: m.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.Email}})
	h.SetSubject(subject(msg))
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, textBody(msg, sentAt)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func textBody(msg Message, now time.Time) string {
	switch msg.Kind {
	case KindCycleSummary:
		return fmt.Sprintf(
			"Your cycle is complete.\n\nCompleted tasks: %d\nLeft unfinished: %d\nPoints earned: %d\nAll-time points: %s\n\nA fresh day starts now. Your companion is feeling %s.\n",
			msg.CompletedCount, msg.IncompleteCount, msg.PointsEarned,
			humanize.Comma(msg.AllTimePoints), msg.Mood,
		)
	default:
		last := "a while ago"
		if msg.LastActivityAt != nil {
			last = humanize.RelTime(*msg.LastActivityAt, now, "ago", "from now")
		}
		return fmt.Sprintf(
			"You last checked in %s.\n\nSo far this cycle: %d done, %d to go, %d points.\n\nYour companion is waiting. Complete a task today to cheer them up!\n",
			last, msg.CompletedCount, msg.IncompleteCount, msg.PointsEarned,
		)
	}
}
