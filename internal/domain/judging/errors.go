package judging

import "errors"

// Judging errors.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrNotEligible     = errors.New("candidate is not eligible for this category")
)
