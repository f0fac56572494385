package service

import "errors"

// Sentinel errors returned by the Service. Store errors (not found, already
// compared, session completed) pass through wrapped.
var (
	ErrInvalidVote        = errors.New("invalid vote")
	ErrDuplicateVote      = errors.New("duplicate vote")
	ErrContinueNotAllowed = errors.New("continued voting not allowed")
	ErrCategoryNotInStudy = errors.New("category not in study")
	ErrNoCategories       = errors.New("study has no categories")
)
