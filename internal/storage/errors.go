package storage

import "errors"

// Common storage errors
var (
	ErrNotFound   = errors.New("record not found")
	ErrInvalidKey = errors.New("invalid storage key")
)
