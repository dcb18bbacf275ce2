// Package mutation issues the user's writes against shared post documents.
// Likes and comments go out as field-level set operations; the authoritative
// state always comes back through the post's live subscription.
package mutation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// Identity is the view of the identity resolver the engine needs.
type Identity interface {
	CurrentUID() string
	Profile(ctx context.Context) (*models.User, error)
}

// Notifier is the write side of the notification pipeline.
type Notifier interface {
	Notify(recipientUID, actorName string, kind models.NotificationKind, postID string)
}

type Engine struct {
	posts    repositories.PostRepository
	identity Identity
	notifier Notifier
	storage  images.Source
	log      logging.Logger
}

func NewEngine(posts repositories.PostRepository, identity Identity, notifier Notifier,
	storage images.Source, log logging.Logger) *Engine {
	return &Engine{posts: posts, identity: identity, notifier: notifier, storage: storage, log: log}
}

func (e *Engine) actor(ctx context.Context) (*models.User, error) {
	if e.identity.CurrentUID() == "" {
		return nil, common.ErrAuthRequired
	}
	return e.identity.Profile(ctx)
}

// ToggleLike removes the current user from post's like set when the last
// known snapshot has them in it, and adds them otherwise. Adding a like to
// someone else's post notifies the author.
func (e *Engine) ToggleLike(ctx context.Context, post *models.Post) error {
	me, err := e.actor(ctx)
	if err != nil {
		return err
	}

	if post.IsLikedBy(me.UID) {
		if err := e.posts.RemoveLike(ctx, post.ID, me.UID); err != nil {
			return fmt.Errorf("%w: unlike %s: %w", common.ErrWriteFailed, post.ID, err)
		}
		return nil
	}

	if err := e.posts.AddLike(ctx, post.ID, me.UID); err != nil {
		return fmt.Errorf("%w: like %s: %w", common.ErrWriteFailed, post.ID, err)
	}
	if post.UID != me.UID {
		e.notifier.Notify(post.UID, me.Name, models.NotificationLike, post.ID)
	}
	return nil
}

// AddComment appends a comment by the current user.
func (e *Engine) AddComment(ctx context.Context, post *models.Post, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty comment", common.ErrInvalidInput)
	}
	me, err := e.actor(ctx)
	if err != nil {
		return nil, err
	}

	c := models.Comment{
		ID:        uuid.NewString(),
		UID:       me.UID,
		Name:      me.Name,
		Avatar:    me.Avatar,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.posts.AppendComment(ctx, post.ID, c); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrCommentFailed, post.ID, err)
	}
	if post.UID != me.UID {
		e.notifier.Notify(post.UID, me.Name, models.NotificationComment, post.ID)
	}
	return &c, nil
}

// CreatePost uploads the images and writes the post with the author's
// current name and avatar.
func (e *Engine) CreatePost(ctx context.Context, content string, uploads []images.Upload) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(uploads) == 0 {
		return nil, fmt.Errorf("%w: empty post", common.ErrInvalidInput)
	}
	me, err := e.actor(ctx)
	if err != nil {
		return nil, err
	}

	names, err := e.upload(ctx, me.UID, uploads)
	if err != nil {
		return nil, err
	}
	post := &models.Post{
		UID:          me.UID,
		AuthorName:   me.Name,
		AuthorAvatar: me.Avatar,
		Content:      content,
		ImageURLs:    names,
	}
	if err := e.posts.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("%w: create post: %w", common.ErrWriteFailed, err)
	}
	e.log.Info(ctx, "post created", "post", post.ID, "images", len(names))
	return post, nil
}

// EditPost replaces the content and writes the final image list: the kept
// existing filenames, in their current order, followed by the new uploads.
func (e *Engine) EditPost(ctx context.Context, post *models.Post, content string, keep []string, uploads []images.Upload) error {
	me, err := e.authorOf(post)
	if err != nil {
		return err
	}

	final := make([]string, 0, len(post.ImageURLs)+len(uploads))
	for _, name := range post.ImageURLs {
		if slices.Contains(keep, name) {
			final = append(final, name)
		}
	}
	added, err := e.upload(ctx, me, uploads)
	if err != nil {
		return err
	}
	final = append(final, added...)

	if err := e.posts.UpdateContent(ctx, post.ID, strings.TrimSpace(content), final); err != nil {
		return fmt.Errorf("%w: edit %s: %w", common.ErrWriteFailed, post.ID, err)
	}
	return nil
}

// DeletePost removes the post document.
func (e *Engine) DeletePost(ctx context.Context, post *models.Post) error {
	if _, err := e.authorOf(post); err != nil {
		return err
	}
	if err := e.posts.DeletePost(ctx, post.ID); err != nil {
		return fmt.Errorf("%w: delete %s: %w", common.ErrWriteFailed, post.ID, err)
	}
	e.log.Info(ctx, "post deleted", "post", post.ID)
	return nil
}

func (e *Engine) authorOf(post *models.Post) (string, error) {
	uid := e.identity.CurrentUID()
	if uid == "" {
		return "", common.ErrAuthRequired
	}
	if !post.IsAuthor(uid) {
		return "", common.ErrNotAuthor
	}
	return uid, nil
}

// upload stores each image under images/{uid}/{uuid}{ext} and returns the
// generated filenames.
func (e *Engine) upload(ctx context.Context, uid string, uploads []images.Upload) ([]string, error) {
	names := make([]string, 0, len(uploads))
	for _, u := range uploads {
		name, err := images.Store(ctx, e.storage, uid, u)
		if err != nil {
			return nil, fmt.Errorf("%w: upload %s: %w", common.ErrWriteFailed, u.Filename, err)
		}
		names = append(names, name)
	}
	return names, nil
}
