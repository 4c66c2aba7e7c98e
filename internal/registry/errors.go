package registry

import "errors"

var (
	// ErrUnauthorized is returned when a caller lacks the role an
	// entry point is restricted to.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrOwnerMismatch is returned when an explicit asset id is bound
	// to a different owner.
	ErrOwnerMismatch = errors.New("asset id owned by another identity")

	// ErrInvalidHealth is returned for health values outside [0, 100].
	ErrInvalidHealth = errors.New("health out of range")

	// ErrNotFound is returned for lookups of ids with no record.
	ErrNotFound = errors.New("asset record not found")

	// ErrZeroOwner is returned when a hatch call carries an empty owner.
	ErrZeroOwner = errors.New("owner must not be empty")

	// ErrZeroPosition is returned when a hatch call carries a zero
	// position id.
	ErrZeroPosition = errors.New("position id must not be zero")

	// ErrEmptyValue is returned by admin setters for zero addresses.
	ErrEmptyValue = errors.New("value must not be empty")
)
