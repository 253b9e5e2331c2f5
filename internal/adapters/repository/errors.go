package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound           = errors.New("candidate not found")
	ErrDuplicateScore     = errors.New("score already recorded for this judge and category")
	ErrDuplicateCandidate = errors.New("candidate number already taken for this gender")
	ErrInvalidCandidate   = errors.New("invalid candidate")
)
