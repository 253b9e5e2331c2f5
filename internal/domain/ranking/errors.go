package ranking

import "errors"

// ErrNoFinals is returned by Finalists when the schema declares no finals.
var ErrNoFinals = errors.New("schema has no finals round")
