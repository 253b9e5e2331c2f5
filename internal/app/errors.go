package service

import (
	"errors"

	"github.com/okian/tabulator/internal/domain/judging"
)

// Sentinel errors returned by the service.
var (
	ErrNotStarted          = errors.New("service not started")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrBackpressure        = errors.New("submission queue is full")
	// ErrNotEligible is returned for a finals mark on a non-finalist.
	ErrNotEligible = judging.ErrNotEligible
)
