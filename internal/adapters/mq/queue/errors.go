package queue

import "errors"

// ErrFull is reported by callers when Enqueue refused an event.
var ErrFull = errors.New("queue full or closed")
