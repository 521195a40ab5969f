package catalog

import "errors"

var (
	ErrNotFound   = errors.New("content not found")
	ErrOutOfRange = errors.New("part out of range")
	ErrConflict   = errors.New("content code already exists")
	ErrInvalid    = errors.New("invalid content entry")
)
