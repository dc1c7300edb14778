package domain

import "errors"

// Sentinel errors shared by services and repositories.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMalformedPayload  = errors.New("malformed job payload")
	ErrUnknownJobType    = errors.New("unknown job type")
)
