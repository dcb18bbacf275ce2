package models

import "time"

// Comment is embedded in a Post and is append-only.
type Comment struct {
	ID        string    `json:"id" firestore:"id" bson:"id"`
	UID       string    `json:"uid" firestore:"uid" bson:"uid"`
	Name      string    `json:"name" firestore:"name" bson:"name"`
	Avatar    string    `json:"avatar" firestore:"avatar" bson:"avatar"`
	Text      string    `json:"text" firestore:"text" bson:"text"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}

// CreateCommentRequest defines the request body for creating a new comment
type CreateCommentRequest struct {
	Text string `json:"text" validate:"required,min=1,max=500"`
}
