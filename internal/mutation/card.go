package mutation

import (
	"context"
	"fmt"
	"sync"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/live"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// CommentPage is how many comments ShowMore reveals at a time.
const CommentPage = 3

// CardView is the rendering of one post card.
type CardView struct {
	Post            *models.Post     `json:"post"`
	Exists          bool             `json:"exists"`
	Liked           bool             `json:"liked"`
	LikeCount       int              `json:"likeCount"`
	Comments        []models.Comment `json:"comments"`
	HasMoreComments bool             `json:"hasMoreComments"`
	CanEdit         bool             `json:"canEdit"`
	CanInteract     bool             `json:"canInteract"`
	Draft           string           `json:"draft"`
	Error           string           `json:"error,omitempty"`
	Liking          bool             `json:"liking"`
}

// Card holds the local state of one post: the last authoritative snapshot,
// the comment draft, a single error slot and the comment expansion.
type Card struct {
	engine   *Engine
	postID   string
	onChange func(CardView)

	mu     sync.Mutex
	post   *models.Post
	exists bool
	draft  string
	err    error
	shown  int
	liking bool

	emitMu sync.Mutex
}

func NewCard(engine *Engine, postID string, onChange func(CardView)) *Card {
	return &Card{engine: engine, postID: postID, onChange: onChange, shown: CommentPage}
}

// Subscribe keeps the card reconciled with the post document.
func (c *Card) Subscribe(ctx context.Context, store backend.Store) *live.Subscription {
	return live.WatchDocument(ctx, store, repositories.CollectionPosts, c.postID,
		func(snap backend.Snapshot) {
			if !snap.Exists() {
				c.Apply(nil)
				return
			}
			post, err := backend.Decode[models.Post](snap)
			if err != nil {
				c.setError(err)
				return
			}
			c.Apply(post)
		},
		func(err error) { c.setError(fmt.Errorf("%w: post %s: %w", common.ErrFetchFailed, c.postID, err)) })
}

// Apply replaces local state with an authoritative snapshot; nil means the
// post no longer exists.
func (c *Card) Apply(post *models.Post) {
	c.mu.Lock()
	c.post = post
	c.exists = post != nil
	c.mu.Unlock()
	c.emit()
}

// ToggleLike issues a like or unlike based on the last snapshot. It returns
// false without writing while a previous toggle is still in flight.
func (c *Card) ToggleLike(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.liking || c.post == nil {
		c.mu.Unlock()
		return false, nil
	}
	c.liking = true
	post := *c.post
	c.mu.Unlock()
	c.emit()

	err := c.engine.ToggleLike(ctx, &post)

	c.mu.Lock()
	c.liking = false
	if err != nil {
		c.err = err
	}
	c.mu.Unlock()
	c.emit()
	return true, err
}

// SetDraft updates the comment input.
func (c *Card) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// SubmitComment posts the draft. On failure the draft stays for a retry.
func (c *Card) SubmitComment(ctx context.Context) error {
	c.mu.Lock()
	if c.post == nil {
		c.mu.Unlock()
		return common.ErrFetchFailed
	}
	post := *c.post
	text := c.draft
	c.mu.Unlock()

	_, err := c.engine.AddComment(ctx, &post, text)

	c.mu.Lock()
	if err != nil {
		c.err = err
	} else {
		c.draft = ""
		c.err = nil
	}
	c.mu.Unlock()
	c.emit()
	return err
}

// ShowMore reveals the next CommentPage comments. The count never shrinks.
func (c *Card) ShowMore() {
	c.mu.Lock()
	c.shown += CommentPage
	c.mu.Unlock()
	c.emit()
}

// DismissError clears the error slot.
func (c *Card) DismissError() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
	c.emit()
}

// Snapshot returns a copy of the last authoritative post, or nil.
func (c *Card) Snapshot() *models.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.post == nil {
		return nil
	}
	p := *c.post
	return &p
}

// View renders the card for the current user. Edit and delete controls are
// only offered to the author.
func (c *Card) View() CardView {
	uid := c.engine.identity.CurrentUID()

	c.mu.Lock()
	defer c.mu.Unlock()
	v := CardView{
		Exists:      c.exists,
		Draft:       c.draft,
		Liking:      c.liking,
		CanInteract: uid != "",
	}
	if c.err != nil {
		v.Error = c.err.Error()
	}
	if c.post == nil {
		return v
	}
	p := *c.post
	v.Post = &p
	v.Liked = p.IsLikedBy(uid)
	v.LikeCount = p.LikeCount()
	v.CanEdit = p.IsAuthor(uid)
	n := min(c.shown, len(p.Comments))
	v.Comments = p.Comments[:n]
	v.HasMoreComments = n < len(p.Comments)
	return v
}

func (c *Card) setError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.emit()
}

// emit holds emitMu across View and onChange so the last view delivered
// always reflects the latest state.
func (c *Card) emit() {
	if c.onChange == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.onChange(c.View())
}
