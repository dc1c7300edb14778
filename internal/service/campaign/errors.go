package campaign

import (
	"errors"
	"fmt"

	"github.com/ignite/outreach-core/internal/domain"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = fmt.Errorf("campaign %w", domain.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("campaign: %w", domain.ErrInvalidTransition)
	ErrNameRequired      = errors.New("campaign name is required")
	ErrNoLeads           = errors.New("no lead ids given")
)
