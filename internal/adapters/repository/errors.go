package repository

import "errors"

// Sentinel errors returned by every Store implementation.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrAlreadyCompared   = errors.New("pair already compared in this session")
	ErrSessionCompleted  = errors.New("session completed")
	ErrItemNotInCategory = errors.New("item not in category")
	ErrInvalidVote       = errors.New("invalid vote")
	ErrSchemaMismatch    = errors.New("schema version mismatch")
)
