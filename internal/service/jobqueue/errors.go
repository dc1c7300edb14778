package jobqueue

import (
	"errors"
	"fmt"

	"github.com/ignite/outreach-core/internal/domain"
)

// ErrPermanent marks a failure that no retry can fix. Jobs failing with it
// go straight to failed.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err can never succeed on retry: explicitly
// wrapped permanent errors, undecodable payloads, unknown job types and
// references to rows that do not exist.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, domain.ErrMalformedPayload) ||
		errors.Is(err, domain.ErrUnknownJobType) ||
		errors.Is(err, domain.ErrNotFound)
}
