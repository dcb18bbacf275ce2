// Package membership handles package-tier applications and the tier lookup
// used to decorate author names.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// Identity is the view of the identity resolver the wizard needs.
type Identity interface {
	Require() (string, error)
}

// Application is one completed wizard run.
type Application struct {
	Request models.CreateSubscriptionRequest
	Images  []images.Upload
}

type Service struct {
	subs     repositories.SubscriptionRepository
	identity Identity
	storage  images.Source
	log      logging.Logger
}

func NewService(subs repositories.SubscriptionRepository, identity Identity, storage images.Source, log logging.Logger) *Service {
	return &Service{subs: subs, identity: identity, storage: storage, log: log}
}

// Submit uploads the verification images and writes the subscription record.
func (s *Service) Submit(ctx context.Context, app Application) (*models.Subscription, error) {
	uid, err := s.identity.Require()
	if err != nil {
		return nil, err
	}
	if len(app.Images) == 0 {
		return nil, fmt.Errorf("%w: at least one verification image is required", common.ErrInvalidInput)
	}

	names := make([]string, 0, len(app.Images))
	for _, u := range app.Images {
		name, err := images.Store(ctx, s.storage, uid, u)
		if err != nil {
			return nil, fmt.Errorf("%w: upload %s: %w", common.ErrWriteFailed, u.Filename, err)
		}
		names = append(names, name)
	}

	sub := &models.Subscription{
		UID:     uid,
		Package: app.Request.Package,
		Images:  names,
		Phone:   app.Request.Phone,
		Email:   strings.TrimSpace(app.Request.Email),
		Address: strings.TrimSpace(app.Request.Address),
	}
	if err := s.subs.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("%w: subscription: %w", common.ErrWriteFailed, err)
	}
	s.log.Info(ctx, "subscription submitted", "uid", uid, "package", sub.Package)
	return sub, nil
}

// Lookup resolves package tiers, caching each uid's tier for its lifetime.
type Lookup struct {
	subs repositories.SubscriptionRepository

	mu    sync.Mutex
	tiers map[string]string
}

func NewLookup(subs repositories.SubscriptionRepository) *Lookup {
	return &Lookup{subs: subs, tiers: make(map[string]string)}
}

// Tier returns the package of the first subscription record of uid, or
// models.TierBasic when there is none.
func (l *Lookup) Tier(ctx context.Context, uid string) (string, error) {
	l.mu.Lock()
	tier, ok := l.tiers[uid]
	l.mu.Unlock()
	if ok {
		return tier, nil
	}

	sub, err := l.subs.FirstForUser(ctx, uid)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		tier = models.TierBasic
	case err != nil:
		return models.TierBasic, fmt.Errorf("%w: tier %s: %w", common.ErrFetchFailed, uid, err)
	default:
		tier = sub.Package
	}

	l.mu.Lock()
	l.tiers[uid] = tier
	l.mu.Unlock()
	return tier, nil
}

// Badge is the icon shown next to a name for tier; "" for no badge.
func Badge(tier string) string {
	switch tier {
	case models.TierPremium:
		return "badge-premium"
	case models.TierStandard:
		return "badge-standard"
	default:
		return ""
	}
}
