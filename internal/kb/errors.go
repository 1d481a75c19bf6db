package kb

import "errors"

var (
	ErrEmptyDocument    = errors.New("document produced no chunks")
	ErrDocumentNotFound = errors.New("document not found")
)
