package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/polyecho/echobot/internal/domain"
)

const (
	notificationStream = "notifications"
	pumpBatchSize      = 50
	pumpIdleDelay      = 2 * time.Second
)

// queuedNotification is the stream payload format.
type queuedNotification struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// StreamQueue implements domain.NotificationQueue on the durable stream.
// Enqueue failures are swallowed after logging: notifications are strictly
// fire-and-forget and must never fail the operation that produced them.
type StreamQueue struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewStreamQueue creates a StreamQueue.
func NewStreamQueue(bus domain.SignalBus, logger *slog.Logger) *StreamQueue {
	return &StreamQueue{
		bus:    bus,
		logger: logger.With(slog.String("component", "notification_queue")),
	}
}

var _ domain.NotificationQueue = (*StreamQueue)(nil)

// QueueNotification appends a notification to the stream.
func (q *StreamQueue) QueueNotification(ctx context.Context, userID, title, message string) {
	payload, err := json.Marshal(queuedNotification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		q.logger.WarnContext(ctx, "marshal notification failed",
			slog.String("error", err.Error()))
		return
	}

	if err := q.bus.StreamAppend(ctx, notificationStream, payload); err != nil {
		q.logger.WarnContext(ctx, "enqueue notification failed",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
	}
}

// Pump drains the notification stream and delivers entries through the
// notifier until the context is cancelled. Malformed or undeliverable
// entries are logged and skipped; the stream position always advances.
func (q *StreamQueue) Pump(ctx context.Context, notifier *Notifier) {
	lastID := "0"

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := q.bus.StreamRead(ctx, notificationStream, lastID, pumpBatchSize)
		if err != nil {
			q.logger.WarnContext(ctx, "stream read failed",
				slog.String("error", err.Error()))
		}
		if len(msgs) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pumpIdleDelay):
			}
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID

			var n queuedNotification
			if err := json.Unmarshal(msg.Payload, &n); err != nil {
				q.logger.WarnContext(ctx, "dropping malformed notification",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := notifier.NotifyAll(ctx, n.Title, n.Message); err != nil {
				q.logger.WarnContext(ctx, "notification delivery failed",
					slog.String("title", n.Title),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
