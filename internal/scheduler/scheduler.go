package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/config"
	"github.com/velomarket/auction-service/internal/messaging"
)

var tracer = otel.Tracer("github.com/velomarket/auction-service/scheduler")

// ExpiryJob is the payload enqueued on the expiry topic. The external
// delayed-job infrastructure holds the message until FireAt and then
// redelivers it for the worker to consume.
type ExpiryJob struct {
	JobID     string    `json:"job_id"`
	AuctionID int64     `json:"auction_id"`
	FireAt    time.Time `json:"fire_at"`
}

// Scheduler enqueues one-shot expiry jobs for auctions.
type Scheduler struct {
	publisher messaging.Client
	topic     string
	enabled   bool
	logger    *zap.Logger
}

// Params defines dependencies for constructing Scheduler.
type Params struct {
	fx.In

	Publisher messaging.Client
	Config    config.Config
	Logger    *zap.Logger
}

// New wires a Scheduler backed by the configured message bus.
func New(p Params) *Scheduler {
	return &Scheduler{
		publisher: p.Publisher,
		topic:     p.Config.Messaging.Kafka.Topics.AuctionExpiry,
		enabled:   p.Config.Messaging.Enabled,
		logger:    p.Logger,
	}
}

// Module provides the scheduler to Fx.
var Module = fx.Provide(New)

// ScheduleExpiry enqueues an expiry job for the auction to fire at the given
// instant. Unlike notification fan-out this is not best-effort: a job that
// fails to enqueue would leave the auction without an expiry sweep, so the
// error is returned for the caller to surface.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, auctionID int64, fireAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Scheduler.ScheduleExpiry", trace.WithAttributes(
		attribute.Int64("auction.id", auctionID),
	))
	defer span.End()

	if !s.enabled || s.publisher == nil {
		s.logger.Warn("messaging disabled; expiry job not scheduled", zap.Int64("auction_id", auctionID))
		return nil
	}

	job := ExpiryJob{
		JobID:     uuid.NewString(),
		AuctionID: auctionID,
		FireAt:    fireAt.UTC(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return fmt.Errorf("marshal expiry job: %w", err)
	}

	key := []byte(fmt.Sprintf("auction-%d", auctionID))
	if err := s.publisher.Publish(ctx, s.topic, key, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("enqueue expiry job: %w", err)
	}

	s.logger.Info("expiry job scheduled",
		zap.String("job_id", job.JobID),
		zap.Int64("auction_id", auctionID),
		zap.Time("fire_at", job.FireAt))
	return nil
}
