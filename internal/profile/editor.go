// Package profile edits the signed-in user's profile document. Posts and
// comments keep the author name and avatar they were created with.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// EditTarget is the profile image being replaced.
type EditTarget int

const (
	Avatar EditTarget = iota + 1
	Cover
)

func (t EditTarget) String() string {
	switch t {
	case Avatar:
		return "avatar"
	case Cover:
		return "cover"
	default:
		return fmt.Sprintf("EditTarget(%d)", int(t))
	}
}

// ParseEditTarget maps a route segment to an EditTarget.
func ParseEditTarget(s string) (EditTarget, error) {
	switch strings.ToLower(s) {
	case "avatar":
		return Avatar, nil
	case "cover":
		return Cover, nil
	default:
		return 0, fmt.Errorf("%w: unknown image target %q", common.ErrInvalidInput, s)
	}
}

// Identity is the view of the identity resolver the editor needs.
type Identity interface {
	Require() (string, error)
	Refresh(ctx context.Context) (*models.User, error)
}

type Editor struct {
	users    repositories.UserRepository
	identity Identity
	storage  images.Source
	log      logging.Logger
}

func NewEditor(users repositories.UserRepository, identity Identity, storage images.Source, log logging.Logger) *Editor {
	return &Editor{users: users, identity: identity, storage: storage, log: log}
}

// UpdateDetails overwrites name, bio and birthday and returns the fresh profile.
func (e *Editor) UpdateDetails(ctx context.Context, req models.UpdateProfileRequest) (*models.User, error) {
	uid, err := e.identity.Require()
	if err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: empty name", common.ErrInvalidInput)
	}
	if err := e.users.UpdateDetails(ctx, uid, req); err != nil {
		return nil, fmt.Errorf("%w: profile: %w", common.ErrWriteFailed, err)
	}
	return e.identity.Refresh(ctx)
}

// UpdateImage dispatches to the handler of target.
func (e *Editor) UpdateImage(ctx context.Context, target EditTarget, u images.Upload) (*models.User, error) {
	switch target {
	case Avatar:
		return e.UpdateAvatar(ctx, u)
	case Cover:
		return e.UpdateCover(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidInput, target)
	}
}

// UpdateAvatar uploads a new avatar.
func (e *Editor) UpdateAvatar(ctx context.Context, u images.Upload) (*models.User, error) {
	return e.replaceImage(ctx, "avatar", u)
}

// UpdateCover uploads a new cover photo.
func (e *Editor) UpdateCover(ctx context.Context, u images.Upload) (*models.User, error) {
	return e.replaceImage(ctx, "coverPhoto", u)
}

func (e *Editor) replaceImage(ctx context.Context, field string, u images.Upload) (*models.User, error) {
	uid, err := e.identity.Require()
	if err != nil {
		return nil, err
	}
	name, err := images.Store(ctx, e.storage, uid, u)
	if err != nil {
		return nil, fmt.Errorf("%w: upload %s: %w", common.ErrWriteFailed, field, err)
	}
	if err := e.users.SetField(ctx, uid, field, name); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrWriteFailed, field, err)
	}
	e.log.Info(ctx, "profile image replaced", "field", field)
	return e.identity.Refresh(ctx)
}
