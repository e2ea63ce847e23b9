package schema

import "errors"

// Errors
var (
	ErrSchemaNotFound        = errors.New("schema not found")
	ErrSchemaVersionNotFound = errors.New("no schema version matches build")
	ErrInvariantViolation    = errors.New("schema invariant violation")
)
