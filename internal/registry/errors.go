package registry

import "errors"

var (
	// ErrMissingAddress is returned when a tracker has no wallet address.
	ErrMissingAddress = errors.New("tracker wallet address is required")

	// ErrMissingAlias is returned when a tracker has no alias.
	ErrMissingAlias = errors.New("tracker alias is required")
)
