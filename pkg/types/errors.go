package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptyPath     = errors.New("path cannot be empty")
	ErrRelativePath  = errors.New("path must be absolute")
	ErrInvalidState  = errors.New("invalid record state")
	ErrNegativeSize  = errors.New("size must be >= 0")
	ErrNoRoots       = errors.New("at least one root is required")
	ErrInvalidRank   = errors.New("rank must be >= 1")
	ErrInvalidScore  = errors.New("score must be between -1 and 1")
	ErrInvalidResult = errors.New("search result requires a record")
)
