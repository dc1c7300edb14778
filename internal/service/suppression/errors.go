package suppression

import (
	"errors"
	"fmt"

	"github.com/ignite/outreach-core/internal/domain"
)

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound      = fmt.Errorf("suppression entry %w", domain.ErrNotFound)
	ErrEmailRequired = errors.New("email is required")
)
