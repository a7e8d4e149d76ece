// Package common defines shared constants and sentinel errors used across
// the repository, storage and service layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Blob storage errors.
	ErrBlobAlreadyExists = errors.New("blob already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
