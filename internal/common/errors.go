// Package common defines the sentinel errors shared by the sync layer.
// Callers match them with errors.Is; producers wrap them with fmt.Errorf("%w").
package common

import "errors"

var (
	// Identity errors.
	ErrAuthRequired    = errors.New("authentication required")
	ErrProfileNotFound = errors.New("profile not found")
	ErrFetchFailed     = errors.New("fetch failed")

	// Mutation errors.
	ErrWriteFailed   = errors.New("write failed")
	ErrCommentFailed = errors.New("comment failed")
	ErrNotAuthor     = errors.New("only the author can change this post")
	ErrInvalidInput  = errors.New("invalid input")

	// Per-image error; callers degrade to a placeholder.
	ErrImageResolutionFailed = errors.New("image resolution failed")
)
