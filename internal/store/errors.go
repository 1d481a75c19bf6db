package store

import "errors"

var (
	ErrUnavailable       = errors.New("vector store unavailable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
