package models

import "errors"

// Failure classes of a load run. Callers wrap these with context and test
// them with errors.Is.
var (
	ErrConnect       = errors.New("warehouse unreachable")
	ErrInputNotFound = errors.New("input file not found")
	ErrMalformedRow  = errors.New("malformed row")
	ErrUnresolvedKey = errors.New("unresolved dimension key")
)
