package repositories

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/models"
)

// SubscriptionRepository defines the interface for package-tier records
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	FirstForUser(ctx context.Context, uid string) (*models.Subscription, error)
}

// StoreSubscriptionRepository implements SubscriptionRepository on a backend.Store
type StoreSubscriptionRepository struct {
	store backend.Store
}

// NewStoreSubscriptionRepository creates a new StoreSubscriptionRepository
func NewStoreSubscriptionRepository(store backend.Store) *StoreSubscriptionRepository {
	return &StoreSubscriptionRepository{store: store}
}

// CreateSubscription writes the record under a generated id
func (r *StoreSubscriptionRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	id, err := r.store.Add(ctx, CollectionSubscriptions, sub)
	if err != nil {
		return err
	}
	sub.ID = id
	return nil
}

// FirstForUser returns the first record matching uid, or backend.ErrNotFound
func (r *StoreSubscriptionRepository) FirstForUser(ctx context.Context, uid string) (*models.Subscription, error) {
	snaps, err := r.store.Find(ctx, backend.Query{
		Collection: CollectionSubscriptions,
		Filters:    []backend.Filter{{Path: "uid", Value: uid}},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, backend.ErrNotFound
	}
	return backend.Decode[models.Subscription](snaps[0])
}
