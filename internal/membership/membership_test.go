package membership

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

type staticIdentity string

func (s staticIdentity) Require() (string, error) {
	if s == "" {
		return "", common.ErrAuthRequired
	}
	return string(s), nil
}

func validRequest() models.CreateSubscriptionRequest {
	return models.CreateSubscriptionRequest{
		Package: models.TierPremium,
		Phone:   "+8801700000000",
		Email:   "alice@example.com",
	}
}

func TestSubmit_WritesRecordWithImages(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	storage := images.NewMemorySource()
	subs := repositories.NewStoreSubscriptionRepository(store)
	svc := NewService(subs, staticIdentity("alice"), storage, logging.Discard())

	sub, err := svc.Submit(ctx, Application{
		Request: validRequest(),
		Images:  []images.Upload{{Filename: "id.jpg", ContentType: "image/jpeg", Body: strings.NewReader("id")}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	require.Len(t, sub.Images, 1)
	_, _, ok := storage.Object(images.ObjectPath("alice", sub.Images[0]))
	assert.True(t, ok)

	got, err := subs.FirstForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, got.Package)
}

func TestSubmit_Rejects(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	subs := repositories.NewStoreSubscriptionRepository(store)

	_, err := NewService(subs, staticIdentity("alice"), images.NewMemorySource(), logging.Discard()).
		Submit(ctx, Application{Request: validRequest()})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = NewService(subs, staticIdentity(""), images.NewMemorySource(), logging.Discard()).
		Submit(ctx, Application{Request: validRequest()})
	assert.ErrorIs(t, err, common.ErrAuthRequired)
}

func TestLookup_DefaultsAndFirstMatch(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	subs := repositories.NewStoreSubscriptionRepository(store)
	require.NoError(t, subs.CreateSubscription(ctx, &models.Subscription{UID: "bob", Package: models.TierStandard}))

	l := NewLookup(subs)
	tier, err := l.Tier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, tier)

	tier, err = l.Tier(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.TierStandard, tier)
}

func TestLookup_CachesPerUID(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	subs := repositories.NewStoreSubscriptionRepository(store)
	l := NewLookup(subs)

	_, err := l.Tier(ctx, "alice")
	require.NoError(t, err)

	store.SetFault(func(op, _ string) error {
		if op == "find" {
			return errors.New("offline")
		}
		return nil
	})
	tier, err := l.Tier(ctx, "alice")
	require.NoError(t, err, "served from cache")
	assert.Equal(t, models.TierBasic, tier)

	_, err = l.Tier(ctx, "carol")
	assert.ErrorIs(t, err, common.ErrFetchFailed)
}

func TestBadge(t *testing.T) {
	assert.Equal(t, "", Badge(models.TierBasic))
	assert.Equal(t, "badge-standard", Badge(models.TierStandard))
	assert.Equal(t, "badge-premium", Badge(models.TierPremium))
}
