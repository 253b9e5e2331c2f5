package schema

import "errors"

// Sentinel kinds for schema errors.
var (
	ErrInvalidSchema  = errors.New("invalid category schema")
	ErrUnknownEdition = errors.New("unknown schema edition")
)
