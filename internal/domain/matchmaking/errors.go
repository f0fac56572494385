package matchmaking

import "errors"

// ErrInsufficientItems is returned when the pool is too small to form a
// pair (fewer than 2 items) or a quad (fewer than 4 items).
var ErrInsufficientItems = errors.New("insufficient items")
