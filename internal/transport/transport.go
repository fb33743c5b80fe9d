// Package transport performs the actual delivery of rendered content.
package transport

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	// RetryWindow bounds the retries of a single delivery attempt. It must
	// stay well below the queue's visibility timeout, beyond that the broker
	// considers the job abandoned and redelivers it while this attempt may
	// still be outstanding. That overlap is the documented at-least-once
	// tradeoff, not something the transport tries to prevent.
	RetryWindow time.Duration

	// Rate caps transport sends per second across all workers sharing this
	// sender. Zero disables the limiter.
	Rate int
}

// SMTP relays messages through a single configured SMTP endpoint.
type SMTP struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Rate)
	}
	return &SMTP{cfg: cfg, limiter: limiter}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if len(msg.Text) > 0 {
		m.SetBody("text/plain", msg.Text)
	}
	if len(msg.HTML) > 0 {
		if len(msg.Text) > 0 {
			m.AddAlternative("text/html", msg.HTML)
		} else {
			m.SetBody("text/html", msg.HTML)
		}
	}

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password)

	operation := func() error {
		err := d.DialAndSend(m)
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = s.cfg.RetryWindow

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Retryable classifies a transport error. Network trouble and server-side
// congestion are worth another attempt, a rejected recipient is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return true
	}

	// SMTP reply codes, 4xx is transient by definition, 5xx permanent.
	if len(msg) >= 3 {
		switch msg[0] {
		case '4':
			return true
		case '5':
			return false
		}
	}
	return true
}
