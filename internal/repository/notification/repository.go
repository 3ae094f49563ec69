package notification

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/velomarket/auction-service/internal/database"
	"github.com/velomarket/auction-service/internal/entity"
)

var repoTracer = otel.Tracer("github.com/velomarket/auction-service/repository/notification")

// ErrNotFound is returned when a notification is missing.
var ErrNotFound = errors.New("notification not found")

// Store is the persistence contract for notifications.
type Store interface {
	Insert(ctx context.Context, n *entity.Notification) error
	InsertMany(ctx context.Context, ns []entity.Notification) error
	ListByUser(ctx context.Context, userID int64) ([]entity.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Repository encapsulates read/write access for notifications.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Insert persists a single notification.
func (r *Repository) Insert(ctx context.Context, n *entity.Notification) error {
	if n == nil {
		return errors.New("nil notification")
	}
	ctx, span := repoTracer.Start(ctx, "NotificationRepository.Insert", trace.WithAttributes(attribute.Int64("user.id", n.UserID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(n).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// InsertMany persists a batch of notifications in one statement.
func (r *Repository) InsertMany(ctx context.Context, ns []entity.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	ctx, span := repoTracer.Start(ctx, "NotificationRepository.InsertMany", trace.WithAttributes(attribute.Int("count", len(ns))))
	defer span.End()

	_, err := r.writer.NewInsert().Model(&ns).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ListByUser returns a user's notifications, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]entity.Notification, error) {
	var ns []entity.Notification
	err := r.reader.NewSelect().Model(&ns).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ns, nil
}

// MarkRead flags one of the user's notifications as read.
func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	res, err := r.writer.NewUpdate().Model((*entity.Notification)(nil)).
		Set("is_read = TRUE").
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read and
// returns the number of rows touched.
func (r *Repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := r.writer.NewUpdate().Model((*entity.Notification)(nil)).
		Set("is_read = TRUE").
		Where("user_id = ?", userID).
		Where("is_read = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
