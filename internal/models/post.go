package models

import (
	"slices"
	"time"
)

// Post represents a blog post stored in the posts collection.
// AuthorName and AuthorAvatar are copied from the author's profile at creation
// time and are never rewritten when the profile changes.
type Post struct {
	ID           string    `json:"id" firestore:"-" bson:"-"`
	UID          string    `json:"uid" firestore:"uid" bson:"uid"`
	AuthorName   string    `json:"authorName" firestore:"authorName" bson:"authorName"`
	AuthorAvatar string    `json:"authorAvatar" firestore:"authorAvatar" bson:"authorAvatar"`
	Content      string    `json:"content" firestore:"content" bson:"content"`
	ImageURLs    []string  `json:"imageUrls" firestore:"imageUrls" bson:"imageUrls"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	Likes        []string  `json:"likes" firestore:"likes" bson:"likes"`
	Comments     []Comment `json:"comments" firestore:"comments" bson:"comments"`
}

// SetKey fills the ID from the document key after decoding.
func (p *Post) SetKey(id string) { p.ID = id }

// IsLikedBy reports whether uid is in the authoritative like set.
func (p *Post) IsLikedBy(uid string) bool {
	return uid != "" && slices.Contains(p.Likes, uid)
}

// LikeCount counts distinct uids in the like set. It is never accumulated locally.
func (p *Post) LikeCount() int {
	seen := make(map[string]struct{}, len(p.Likes))
	for _, uid := range p.Likes {
		seen[uid] = struct{}{}
	}
	return len(seen)
}

// IsAuthor reports whether uid owns the post.
func (p *Post) IsAuthor(uid string) bool {
	return uid != "" && p.UID == uid
}

// CreatePostRequest defines the form fields for creating a new post
type CreatePostRequest struct {
	Content string `json:"content" form:"content" validate:"max=5000"`
}

// UpdatePostRequest defines the form fields for editing a post.
// Keep lists the existing filenames that survive the edit; a lone empty
// value keeps none.
type UpdatePostRequest struct {
	Content string   `json:"content" form:"content" validate:"required,min=1,max=5000"`
	Keep    []string `json:"keep" form:"keep"`
}
