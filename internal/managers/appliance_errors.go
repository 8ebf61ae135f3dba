package managers

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaultbridge/vaultbridge/pkg/clients/safeguard"
	"github.com/vaultbridge/vaultbridge/pkg/domain"
)

// classifyApplianceError maps appliance client failures onto domain errors,
// keeping the upstream message.
func classifyApplianceError(err error) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := safeguard.AsError(err); ok {
		switch {
		case apiErr.IsAuthError():
			return fmt.Errorf("%w: %s", domain.ErrAuthentication, apiErr.Message)
		case apiErr.IsNotFound():
			return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Message)
		default:
			return fmt.Errorf("%w: %s", domain.ErrUpstream, apiErr.Message)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}

	return fmt.Errorf("%w: %s", domain.ErrUpstream, err.Error())
}
