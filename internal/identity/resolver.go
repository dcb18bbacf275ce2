package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"firebase.google.com/go/v4/auth"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// TokenVerifier verifies identity provider ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Resolver exposes the current uid and fetches the matching profiles. Fetched
// profiles are cached until the uid in the cell changes.
type Resolver struct {
	cell     *Cell
	sessions SessionStore
	users    repositories.UserRepository
	verifier TokenVerifier
	log      logging.Logger

	mu       sync.Mutex
	profiles map[string]*models.User
	unwatch  func()
}

func NewResolver(cell *Cell, sessions SessionStore, users repositories.UserRepository,
	verifier TokenVerifier, log logging.Logger) *Resolver {
	r := &Resolver{
		cell:     cell,
		sessions: sessions,
		users:    users,
		verifier: verifier,
		log:      log,
		profiles: make(map[string]*models.User),
	}
	r.unwatch = cell.Watch(func(string) { r.dropProfiles() })
	return r
}

// Cell returns the identity cell the resolver writes to.
func (r *Resolver) Cell() *Cell { return r.cell }

// Restore loads the persisted session into the cell.
func (r *Resolver) Restore(ctx context.Context) error {
	uid, err := r.sessions.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load session: %w", common.ErrFetchFailed, err)
	}
	r.cell.Set(uid)
	if uid != "" {
		r.log.Info(ctx, "session restored", "uid", uid)
	}
	return nil
}

// SignIn verifies idToken, creates the profile document on first sign-in,
// persists the session and publishes the uid.
func (r *Resolver) SignIn(ctx context.Context, idToken string) (string, error) {
	if r.verifier == nil {
		return "", fmt.Errorf("%w: no identity provider configured", common.ErrAuthRequired)
	}
	token, err := r.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrAuthRequired, err)
	}

	if err := r.ensureProfile(ctx, token); err != nil {
		return "", err
	}
	if err := r.sessions.Save(ctx, token.UID); err != nil {
		return "", fmt.Errorf("%w: save session: %w", common.ErrWriteFailed, err)
	}
	r.cell.Set(token.UID)
	r.log.Info(ctx, "signed in", "uid", token.UID)
	return token.UID, nil
}

func (r *Resolver) ensureProfile(ctx context.Context, token *auth.Token) error {
	_, err := r.users.GetUserByUID(ctx, token.UID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("%w: %w", common.ErrFetchFailed, err)
	}

	name, _ := token.Claims["name"].(string)
	picture, _ := token.Claims["picture"].(string)
	user := &models.User{
		UID:       token.UID,
		Name:      name,
		Avatar:    picture,
		Role:      "user",
		Package:   models.TierBasic,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: create profile: %w", common.ErrWriteFailed, err)
	}
	r.log.Info(ctx, "profile created", "uid", token.UID)
	return nil
}

// SignOut clears the persisted session and the cell.
func (r *Resolver) SignOut(ctx context.Context) error {
	if err := r.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("%w: clear session: %w", common.ErrWriteFailed, err)
	}
	r.cell.Set("")
	return nil
}

// CurrentUID returns the signed-in uid or "".
func (r *Resolver) CurrentUID() string { return r.cell.Current() }

// Require returns the signed-in uid or common.ErrAuthRequired.
func (r *Resolver) Require() (string, error) {
	uid := r.cell.Current()
	if uid == "" {
		return "", common.ErrAuthRequired
	}
	return uid, nil
}

// Profile returns the signed-in user's profile.
func (r *Resolver) Profile(ctx context.Context) (*models.User, error) {
	uid, err := r.Require()
	if err != nil {
		return nil, err
	}
	return r.ProfileFor(ctx, uid)
}

// ProfileFor fetches users/{uid} once per identity change. Absence is
// common.ErrProfileNotFound, any other failure common.ErrFetchFailed.
func (r *Resolver) ProfileFor(ctx context.Context, uid string) (*models.User, error) {
	r.mu.Lock()
	if p, ok := r.profiles[uid]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	p, err := r.users.GetUserByUID(ctx, uid)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", common.ErrProfileNotFound, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: profile %s: %w", common.ErrFetchFailed, uid, err)
	}

	r.mu.Lock()
	r.profiles[uid] = p
	r.mu.Unlock()
	return p, nil
}

// Refresh drops the cached profile of the signed-in user and fetches it again.
func (r *Resolver) Refresh(ctx context.Context) (*models.User, error) {
	uid, err := r.Require()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	delete(r.profiles, uid)
	r.mu.Unlock()
	return r.ProfileFor(ctx, uid)
}

// Close stops watching the cell.
func (r *Resolver) Close() { r.unwatch() }

func (r *Resolver) dropProfiles() {
	r.mu.Lock()
	r.profiles = make(map[string]*models.User)
	r.mu.Unlock()
}
