package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/mail"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
)

// Store is the slice of the persistence layer the dispatcher needs.
type Store interface {
	ProcessPending(ctx context.Context, limit int, handle func(ctx context.Context, event persistence.OutboxEvent) persistence.EventOutcome) (int, error)
}

// Config tunes polling and retry behavior. Zero values fall back to defaults.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Hour
	}
	return c
}

// Dispatcher drains pending outbox events into emails. Send failures
// reschedule the event with exponential backoff; events that spend their
// retries are marked failed and logged, never surfaced to signers.
type Dispatcher struct {
	store  Store
	mailer mail.Mailer
	logger *zap.Logger
	cfg    Config
}

func NewDispatcher(store Store, mailer mail.Mailer, logger *zap.Logger, cfg Config) *Dispatcher {
	if store == nil {
		panic("outbox dispatcher requires a store")
	}
	if mailer == nil {
		panic("outbox dispatcher requires a mailer")
	}
	if logger == nil {
		panic("outbox dispatcher requires a logger")
	}
	return &Dispatcher{store: store, mailer: mailer, logger: logger, cfg: cfg.withDefaults()}
}

// Run polls until the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("outbox dispatcher started",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DrainOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("outbox drain failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DrainOnce processes every currently due event and reports how many were
// handled.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := d.store.ProcessPending(ctx, d.cfg.BatchSize, d.handle)
		total += n
		if err != nil {
			return total, err
		}
		if n < d.cfg.BatchSize {
			return total, nil
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event persistence.OutboxEvent) persistence.EventOutcome {
	msg, err := d.messageFor(event)
	if err != nil {
		// A payload that cannot be read now never will be; no point retrying.
		d.logger.Error("outbox event unreadable",
			zap.String("event_id", event.EventID.String()),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return persistence.EventOutcome{Exhausted: true, Error: err.Error()}
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		attempt := event.Attempts + 1
		if attempt >= d.cfg.MaxAttempts {
			d.logger.Error("outbox event exhausted",
				zap.String("event_id", event.EventID.String()),
				zap.String("event_type", event.EventType),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return persistence.EventOutcome{Exhausted: true, Error: err.Error()}
		}

		delay := d.delayFor(attempt)
		d.logger.Warn("mail send failed, rescheduling",
			zap.String("event_id", event.EventID.String()),
			zap.String("event_type", event.EventType),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		return persistence.EventOutcome{Error: err.Error(), NextAttemptAt: time.Now().Add(delay)}
	}

	d.logger.Info("notification sent",
		zap.String("event_type", event.EventType),
		zap.String("to", msg.To),
	)
	return persistence.EventOutcome{Dispatched: true}
}

func (d *Dispatcher) messageFor(event persistence.OutboxEvent) (mail.Message, error) {
	payload, err := DecodePayload(event.Payload)
	if err != nil {
		return mail.Message{}, err
	}

	switch event.EventType {
	case EventSigningStarted, EventTenantSigned:
		if payload.SigningURL == "" {
			return mail.Message{}, fmt.Errorf("invite event %s lacks a signing url", event.EventID)
		}
		var expires time.Time
		if payload.ExpiresAt != nil {
			expires = *payload.ExpiresAt
		}
		return mail.RenderSigningInvite(payload.RecipientEmail, mail.SigningInviteParams{
			RecipientName: payload.RecipientName,
			PropertyLabel: payload.PropertyLabel,
			SigningURL:    payload.SigningURL,
			ExpiresAt:     expires,
		})
	case EventLeaseExecuted:
		if payload.SignedPDFURL == "" {
			return mail.Message{}, fmt.Errorf("executed event %s lacks a signed pdf url", event.EventID)
		}
		return mail.RenderExecuted(payload.RecipientEmail, mail.ExecutedParams{
			RecipientName: payload.RecipientName,
			PropertyLabel: payload.PropertyLabel,
			SignedPDFURL:  payload.SignedPDFURL,
		})
	default:
		return mail.Message{}, fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
}

// delayFor computes the backoff before the given attempt number retries.
func (d *Dispatcher) delayFor(attempt int) time.Duration {
	b := retry.WithCappedDuration(d.cfg.MaxBackoff, retry.NewExponential(d.cfg.BaseBackoff))
	delay := d.cfg.BaseBackoff
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}
