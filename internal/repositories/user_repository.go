package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/models"
)

// UserRepository defines the interface for profile document operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	UpdateDetails(ctx context.Context, uid string, req models.UpdateProfileRequest) error
	SetField(ctx context.Context, uid, field, value string) error
	AddDeviceToken(ctx context.Context, uid, token string) error
	RemoveDeviceToken(ctx context.Context, uid, token string) error
}

// StoreUserRepository implements UserRepository on a backend.Store
type StoreUserRepository struct {
	store backend.Store
}

// NewStoreUserRepository creates a new StoreUserRepository
func NewStoreUserRepository(store backend.Store) *StoreUserRepository {
	return &StoreUserRepository{store: store}
}

// CreateUser writes users/{uid}
func (r *StoreUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.DeviceTokens == nil {
		user.DeviceTokens = []string{}
	}
	return r.store.Set(ctx, CollectionUsers, user.UID, user)
}

// GetUserByUID retrieves a profile; backend.ErrNotFound when absent
func (r *StoreUserRepository) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	snap, err := r.store.Get(ctx, CollectionUsers, uid)
	if err != nil {
		return nil, err
	}
	return backend.Decode[models.User](snap)
}

// UpdateDetails overwrites the editable text fields
func (r *StoreUserRepository) UpdateDetails(ctx context.Context, uid string, req models.UpdateProfileRequest) error {
	return r.store.Update(ctx, CollectionUsers, uid, []backend.Update{
		{Path: "name", Value: req.Name},
		{Path: "bio", Value: req.Bio},
		{Path: "birthday", Value: req.Birthday},
	})
}

// SetField overwrites one scalar field, e.g. avatar or coverPhoto
func (r *StoreUserRepository) SetField(ctx context.Context, uid, field, value string) error {
	return r.store.Update(ctx, CollectionUsers, uid, []backend.Update{{Path: field, Value: value}})
}

// AddDeviceToken registers a push token for the user
func (r *StoreUserRepository) AddDeviceToken(ctx context.Context, uid, token string) error {
	return r.store.Update(ctx, CollectionUsers, uid, []backend.Update{
		{Path: "deviceTokens", Value: backend.ArrayUnion(token)},
	})
}

// RemoveDeviceToken drops a push token the messaging service rejected
func (r *StoreUserRepository) RemoveDeviceToken(ctx context.Context, uid, token string) error {
	return r.store.Update(ctx, CollectionUsers, uid, []backend.Update{
		{Path: "deviceTokens", Value: backend.ArrayRemove(token)},
	})
}
