// Package notify sends run status emails. It is the collector's only
// user-visible feedback channel, so failures here are logged and swallowed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"
)

// Notifier delivers a status message. Implementations must never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, subject, body string)
}

type finalKey struct{}

// Final marks ctx as carrying the closing status email of a run. Such sends
// bypass the breaker, though their outcome is still logged.
func Final(ctx context.Context) context.Context {
	return context.WithValue(ctx, finalKey{}, true)
}

// IsFinal reports whether ctx was marked by Final.
func IsFinal(ctx context.Context) bool {
	final, _ := ctx.Value(finalKey{}).(bool)
	return final
}

// SendFunc delivers a composed message
type SendFunc func(ctx context.Context, msg *mail.Msg) error

// EmailConfig holds the mail submission settings. The account sends to itself.
type EmailConfig struct {
	Host     string
	Port     int
	Address  string
	Password string
	Timeout  time.Duration
}

// BreakerSettings configures the send circuit breaker
type BreakerSettings struct {
	ConsecutiveFailures uint32        // Failures in a row before sends are skipped
	OpenTimeout         time.Duration // How long to skip before trying again
}

// DefaultBreakerSettings stops trying after two failed sends for the rest of a
// run. Final sends are never skipped.
var DefaultBreakerSettings = BreakerSettings{
	ConsecutiveFailures: 2,
	OpenTimeout:         10 * time.Minute,
}

const defaultSendTimeout = 30 * time.Second

// EmailNotifier sends plain-text status mail over implicit TLS with SMTP AUTH.
type EmailNotifier struct {
	cfg     EmailConfig
	logger  *logrus.Logger
	breaker *gobreaker.CircuitBreaker
	send    SendFunc
}

// Option customizes an EmailNotifier
type Option func(*EmailNotifier)

// WithSender replaces the SMTP transport (tests).
func WithSender(send SendFunc) Option {
	return func(n *EmailNotifier) {
		if send != nil {
			n.send = send
		}
	}
}

// WithBreakerSettings overrides the default breaker thresholds.
func WithBreakerSettings(s BreakerSettings) Option {
	return func(n *EmailNotifier) {
		n.breaker = newBreaker(s, n.logger)
	}
}

// NewEmailNotifier creates a notifier for the given account.
func NewEmailNotifier(cfg EmailConfig, logger *logrus.Logger, opts ...Option) *EmailNotifier {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}

	n := &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
	n.send = n.dialAndSend
	n.breaker = newBreaker(DefaultBreakerSettings, logger)

	for _, opt := range opts {
		opt(n)
	}
	return n
}

func newBreaker(s BreakerSettings, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmailNotifier",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// Notify composes and sends one message. Errors are logged, never returned.
func (n *EmailNotifier) Notify(ctx context.Context, subject, body string) {
	log := n.logger.WithField("subject", subject)

	msg, err := n.compose(subject, body)
	if err != nil {
		log.WithError(err).Error("Failed to compose status email")
		return
	}

	if IsFinal(ctx) {
		err = n.send(ctx, msg)
	} else {
		_, err = n.breaker.Execute(func() (interface{}, error) {
			return nil, n.send(ctx, msg)
		})
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Warn("Mail path is failing, status email skipped")
	case err != nil:
		log.WithError(err).Error("Failed to send status email")
	default:
		log.Debug("Status email sent")
	}
}

// compose builds a message from and to the configured address
func (n *EmailNotifier) compose(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.Address); err != nil {
		return nil, fmt.Errorf("setting sender: %w", err)
	}
	if err := msg.To(n.cfg.Address); err != nil {
		return nil, fmt.Errorf("setting recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// dialAndSend opens an implicit-TLS session, authenticates, sends and closes.
func (n *EmailNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.cfg.Host,
		mail.WithPort(n.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Address),
		mail.WithPassword(n.cfg.Password),
		mail.WithTimeout(n.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail via %s:%d: %w", n.cfg.Host, n.cfg.Port, err)
	}
	return nil
}

// Ensure EmailNotifier implements Notifier
var _ Notifier = (*EmailNotifier)(nil)
