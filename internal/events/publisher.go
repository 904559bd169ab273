package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cenkalti/backoff/v4"

	"github.com/stackbill/stackbill/internal/logger"
)

// Publisher delivers events to the bus. Implementations must be fire and
// forget: publish failures are logged, never surfaced to billing logic.
type Publisher interface {
	Publish(ctx context.Context, evs ...*Event)
}

// NewGoChannel builds the in-process bus shared by publisher and sinks.
func NewGoChannel(log *logger.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		newWatermillLogger(log),
	)
}

type busPublisher struct {
	pub message.Publisher
	log *logger.Logger
}

// NewPublisher wraps a watermill publisher with marshalling and a bounded
// retry.
func NewPublisher(pub message.Publisher, log *logger.Logger) Publisher {
	return &busPublisher{pub: pub, log: log}
}

func (p *busPublisher) Publish(ctx context.Context, evs ...*Event) {
	for _, ev := range evs {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.log.Errorw("failed to marshal event, dropping",
				"event_id", ev.ID,
				"event_name", ev.Name,
				"error", err)
			continue
		}

		msg := message.NewMessage(ev.ID, payload)
		msg.Metadata.Set("kind", string(ev.Kind))
		msg.Metadata.Set("name", ev.Name)

		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		err = backoff.Retry(func() error {
			return p.pub.Publish(Topic, msg)
		}, policy)
		if err != nil {
			// Audit and notification delivery never blocks the primary
			// operation; the commit already happened.
			p.log.Errorw("failed to publish event after retries",
				"event_id", ev.ID,
				"event_name", ev.Name,
				"error", err)
		}
	}
}

// StartAuditLogger consumes the bus and writes every event to the audit log.
// It stands in for the external audit sink and runs until ctx is cancelled.
func StartAuditLogger(ctx context.Context, sub message.Subscriber, log *logger.Logger) error {
	msgs, err := sub.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warnw("discarding malformed event", "message_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			log.Infow("billing event",
				"kind", ev.Kind,
				"name", ev.Name,
				"tenant_id", ev.TenantID,
				"actor_id", ev.ActorID,
				"entity_type", ev.EntityType,
				"entity_id", ev.EntityID,
				"details", ev.Details,
				"occurred_at", ev.OccurredAt.Format(time.RFC3339),
			)
			msg.Ack()
		}
	}()
	return nil
}

type watermillLogger struct {
	log *logger.Logger
}

func newWatermillLogger(log *logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Errorw(msg, append([]interface{}{"error", err}, flatten(fields)...)...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Infow(msg, flatten(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, flatten(fields)...)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, flatten(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: &logger.Logger{SugaredLogger: l.log.SugaredLogger.With(flatten(fields)...)}}
}

func flatten(fields watermill.LogFields) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
