// Package notify dispatches task-assigned notifications. Delivery is
// best-effort by contract: a failed or rate-limited publish is logged and
// counted, never surfaced to the materializer's control flow.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/crewboard/materializer/internal/domain"
	"github.com/crewboard/materializer/internal/kafka"
	"github.com/crewboard/materializer/internal/redis"
	"github.com/crewboard/materializer/pkg/retry"
	"github.com/crewboard/materializer/pkg/telemetry"
)

// TopicTaskAssigned carries one message per created task instance.
const TopicTaskAssigned = "notifications.task_assigned"

// Notifier emits notifications for created task instances.
type Notifier interface {
	// TaskAssigned publishes a task_assigned notification. Fire-and-forget:
	// it never returns an error.
	TaskAssigned(ctx context.Context, n domain.Notification)
}

type kafkaNotifier struct {
	producer kafka.Producer
	limiter  redis.RateLimiter // nil = unlimited
	logger   *slog.Logger
}

// NewKafkaNotifier returns a Notifier publishing to the task_assigned
// topic. limiter, when non-nil, bounds the per-organization publish rate;
// over-limit notifications are dropped with a warning.
func NewKafkaNotifier(producer kafka.Producer, limiter redis.RateLimiter, logger *slog.Logger) Notifier {
	return &kafkaNotifier{producer: producer, limiter: limiter, logger: logger}
}

func (d *kafkaNotifier) TaskAssigned(ctx context.Context, n domain.Notification) {
	ctx, span := otel.Tracer("notify").Start(ctx, "notify.task_assigned")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.recipient_id", n.RecipientID),
		attribute.String("notification.org_id", n.OrgID),
	)

	log := d.logger.With(
		slog.String("recipient_id", n.RecipientID),
		slog.String("org_id", n.OrgID),
	)

	if d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, n.OrgID)
		if err != nil {
			// Allow on limiter failure so Redis trouble never drops notifications.
			log.Error("notification rate limiter error", slog.String("error", err.Error()))
		} else if !allowed {
			log.Warn("notification rate limit exceeded, dropping",
				slog.Int("limit", d.limiter.Limit()),
			)
			telemetry.NotificationsDispatched.WithLabelValues("dropped").Inc()
			return
		}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		// Notification is a plain struct; this cannot happen with valid input.
		log.Error("marshal notification", slog.String("error", err.Error()))
		telemetry.NotificationsDispatched.WithLabelValues("failed").Inc()
		return
	}

	err = retry.Do(ctx, retry.Config{
		MaxAttempts: 2,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    time.Second,
	}, func() error {
		return d.producer.Publish(ctx, TopicTaskAssigned, n.RecipientID, payload)
	})
	if err != nil {
		span.RecordError(err)
		log.Error("notification publish failed", slog.String("error", err.Error()))
		telemetry.NotificationsDispatched.WithLabelValues("failed").Inc()
		return
	}

	telemetry.NotificationsDispatched.WithLabelValues("sent").Inc()
	log.Debug("notification dispatched")
}
