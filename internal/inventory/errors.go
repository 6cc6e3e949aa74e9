package inventory

import "errors"

// Domain errors for the inventory package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, inventory.ErrInventoryUnavailable) {
//	    // report failure, no partial mapping
//	}
var (
	// ErrInventoryUnavailable is returned (wrapped) by every snapshot source
	// when the controller could not be reached or queried. It is fatal to a run.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")

	// ErrInvalidSnapshot is returned when a snapshot document cannot be decoded.
	ErrInvalidSnapshot = errors.New("inventory: invalid snapshot")
)
