package scoring

import "errors"

// Scoring errors.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownTotal    = errors.New("unknown total")
	ErrUnknownMetric   = errors.New("unknown metric kind")
)
