package models

import "time"

// Package tiers. A user without a subscription record is on TierBasic.
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Subscription is a package-tier application stored at subscriptions/{autoId}.
type Subscription struct {
	ID        string    `json:"id" firestore:"-" bson:"-"`
	UID       string    `json:"uid" firestore:"uid" bson:"uid"`
	Package   string    `json:"package" firestore:"package" bson:"package"`
	Images    []string  `json:"images" firestore:"images" bson:"images"`
	Phone     string    `json:"phone" firestore:"phone" bson:"phone"`
	Email     string    `json:"email" firestore:"email" bson:"email"`
	Address   string    `json:"address" firestore:"address" bson:"address"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}

// SetKey fills the ID from the document key after decoding.
func (s *Subscription) SetKey(id string) { s.ID = id }

// CreateSubscriptionRequest defines the wizard's form fields
type CreateSubscriptionRequest struct {
	Package string `json:"package" form:"package" validate:"required,oneof=standard premium"`
	Phone   string `json:"phone" form:"phone" validate:"required,e164"`
	Email   string `json:"email" form:"email" validate:"required,email"`
	Address string `json:"address" form:"address" validate:"max=200"`
}
