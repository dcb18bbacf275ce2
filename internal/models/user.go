package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the profile document stored at users/{uid}.
type User struct {
	UID          string    `json:"uid" firestore:"uid" bson:"uid"`
	Name         string    `json:"name" firestore:"name" bson:"name"`
	Avatar       string    `json:"avatar" firestore:"avatar" bson:"avatar"`
	CoverPhoto   string    `json:"coverPhoto" firestore:"coverPhoto" bson:"coverPhoto"`
	Bio          string    `json:"bio" firestore:"bio" bson:"bio"`
	Birthday     string    `json:"birthday" firestore:"birthday" bson:"birthday"`
	Role         string    `json:"role" firestore:"role" bson:"role"`
	Package      string    `json:"package" firestore:"package" bson:"package"`
	DeviceTokens []string  `json:"deviceTokens,omitempty" firestore:"deviceTokens" bson:"deviceTokens"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}

// UpdateProfileRequest defines the editable text fields of a profile
type UpdateProfileRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Bio      string `json:"bio" validate:"max=300"`
	Birthday string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
}

// SignInRequest carries the identity provider's ID token
type SignInRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// SessionClaims are the claims of the local session token handed to the browser view
type SessionClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}
