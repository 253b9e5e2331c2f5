package export

import "errors"

var (
	// ErrUnsupportedFormat is returned for an export format other than csv or json.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrRender wraps failures while writing an export.
	ErrRender = errors.New("render export")
)
