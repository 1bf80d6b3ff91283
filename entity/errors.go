package entity

import "errors"

var (
	ErrInvalidValue           = errors.New("entity: invalid value")
	ErrDuplicateInstance      = errors.New("entity: duplicate instance")
	ErrMissingAttribute       = errors.New("entity: missing attribute")
	ErrUnexpectedAttribute    = errors.New("entity: unexpected attribute")
	ErrTypeMismatch           = errors.New("entity: type mismatch")
	ErrInvalidEntityReference = errors.New("entity: invalid entity reference")
	ErrCrossFieldInvariant    = errors.New("entity: cross-field invariant violation")
)
