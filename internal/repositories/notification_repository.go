package repositories

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/models"
)

// NotificationLog is the collection path of a recipient's ordered log.
func NotificationLog(recipientUID string) string {
	return "notifications/" + recipientUID + "/entries"
}

// NotificationRepository defines the interface for notification log operations
type NotificationRepository interface {
	Append(ctx context.Context, recipientUID string, n models.Notification) (string, error)
	MarkDisplayed(ctx context.Context, recipientUID, key string) error
	MarkSeen(ctx context.Context, recipientUID, key string) error
	ListQuery(recipientUID string) backend.Query
	AppendsQuery(recipientUID string) backend.Query
}

type storeNotificationRepository struct {
	store backend.Store
}

func NewStoreNotificationRepository(store backend.Store) NotificationRepository {
	return &storeNotificationRepository{store: store}
}

// Append writes a new entry under a time-ordered ULID key.
func (r *storeNotificationRepository) Append(ctx context.Context, recipientUID string, n models.Notification) (string, error) {
	key := ulid.Make().String()
	n.Key = key
	if err := r.store.Set(ctx, NotificationLog(recipientUID), key, n); err != nil {
		return "", err
	}
	return key, nil
}

func (r *storeNotificationRepository) MarkDisplayed(ctx context.Context, recipientUID, key string) error {
	return r.store.Update(ctx, NotificationLog(recipientUID), key, []backend.Update{{Path: "displayed", Value: true}})
}

func (r *storeNotificationRepository) MarkSeen(ctx context.Context, recipientUID, key string) error {
	return r.store.Update(ctx, NotificationLog(recipientUID), key, []backend.Update{{Path: "seen", Value: true}})
}

// ListQuery is the bell dropdown window, newest first.
func (r *storeNotificationRepository) ListQuery(recipientUID string) backend.Query {
	return backend.Query{Collection: NotificationLog(recipientUID), OrderBy: "createdAt", Desc: true}
}

// AppendsQuery is watched for its Added entries only.
func (r *storeNotificationRepository) AppendsQuery(recipientUID string) backend.Query {
	return backend.Query{Collection: NotificationLog(recipientUID), OrderBy: "createdAt"}
}
