package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/models"
)

// Collection names of the persisted layout.
const (
	CollectionUsers         = "users"
	CollectionPosts         = "posts"
	CollectionSubscriptions = "subscriptions"
)

// PostRepository defines the interface for post data operations.
// Likes and comments are only ever changed with set operations, never by
// rewriting the whole document.
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	UpdateContent(ctx context.Context, id, content string, imageURLs []string) error
	DeletePost(ctx context.Context, id string) error
	AddLike(ctx context.Context, id, uid string) error
	RemoveLike(ctx context.Context, id, uid string) error
	AppendComment(ctx context.Context, id string, comment models.Comment) error
	FeedQuery(limit int, after backend.Snapshot) backend.Query
}

// StorePostRepository implements PostRepository on a backend.Store
type StorePostRepository struct {
	store backend.Store
}

// NewStorePostRepository creates a new StorePostRepository
func NewStorePostRepository(store backend.Store) *StorePostRepository {
	return &StorePostRepository{store: store}
}

// CreatePost assigns a new id and writes the post
func (r *StorePostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	post.ID = uuid.NewString()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	// set operations need real arrays to work on
	if post.Likes == nil {
		post.Likes = []string{}
	}
	if post.Comments == nil {
		post.Comments = []models.Comment{}
	}
	if post.ImageURLs == nil {
		post.ImageURLs = []string{}
	}
	return r.store.Set(ctx, CollectionPosts, post.ID, post)
}

// GetPostByID retrieves a post; backend.ErrNotFound when absent
func (r *StorePostRepository) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	snap, err := r.store.Get(ctx, CollectionPosts, id)
	if err != nil {
		return nil, err
	}
	return backend.Decode[models.Post](snap)
}

// UpdateContent overwrites the text and the final image list
func (r *StorePostRepository) UpdateContent(ctx context.Context, id, content string, imageURLs []string) error {
	if imageURLs == nil {
		imageURLs = []string{}
	}
	return r.store.Update(ctx, CollectionPosts, id, []backend.Update{
		{Path: "content", Value: content},
		{Path: "imageUrls", Value: imageURLs},
	})
}

// DeletePost removes the post document outright
func (r *StorePostRepository) DeletePost(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionPosts, id)
}

// AddLike adds uid to the like set
func (r *StorePostRepository) AddLike(ctx context.Context, id, uid string) error {
	return r.store.Update(ctx, CollectionPosts, id, []backend.Update{
		{Path: "likes", Value: backend.ArrayUnion(uid)},
	})
}

// RemoveLike removes uid from the like set
func (r *StorePostRepository) RemoveLike(ctx context.Context, id, uid string) error {
	return r.store.Update(ctx, CollectionPosts, id, []backend.Update{
		{Path: "likes", Value: backend.ArrayRemove(uid)},
	})
}

// AppendComment appends a comment record
func (r *StorePostRepository) AppendComment(ctx context.Context, id string, comment models.Comment) error {
	return r.store.Update(ctx, CollectionPosts, id, []backend.Update{
		{Path: "comments", Value: backend.ArrayUnion(comment)},
	})
}

// FeedQuery selects one feed page: newest first, strictly after the cursor.
func (r *StorePostRepository) FeedQuery(limit int, after backend.Snapshot) backend.Query {
	return backend.Query{
		Collection: CollectionPosts,
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      limit,
		StartAfter: after,
	}
}
