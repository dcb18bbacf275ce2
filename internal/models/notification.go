package models

import (
	"fmt"
	"time"
)

// NotificationKind is the event that produced a notification.
type NotificationKind string

const (
	NotificationLike    NotificationKind = "like"
	NotificationComment NotificationKind = "comment"
)

// Notification is one entry of a recipient's ordered log.
// Seen means the recipient opened the related post; Displayed means a
// transient alert was already shown for it.
type Notification struct {
	Key       string           `json:"key" firestore:"-" bson:"-"`
	ActorName string           `json:"actorName" firestore:"actorName" bson:"actorName"`
	Kind      NotificationKind `json:"kind" firestore:"kind" bson:"kind"`
	PostID    string           `json:"postId" firestore:"postId" bson:"postId"`
	CreatedAt time.Time        `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	Seen      bool             `json:"seen" firestore:"seen" bson:"seen"`
	Displayed bool             `json:"displayed" firestore:"displayed" bson:"displayed"`
}

// SetKey fills the log key after decoding.
func (n *Notification) SetKey(key string) { n.Key = key }

// Message renders the alert/list text.
func (n *Notification) Message() string {
	switch n.Kind {
	case NotificationLike:
		return fmt.Sprintf("%s liked your post", n.ActorName)
	case NotificationComment:
		return fmt.Sprintf("%s commented on your post", n.ActorName)
	default:
		return fmt.Sprintf("%s interacted with your post", n.ActorName)
	}
}
