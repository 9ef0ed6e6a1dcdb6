package analysis

import "errors"

var (
	// ErrNoData means the snapshot holds zero relevant records for a kind
	// that needs at least one. Surfaced to the caller directly; there is
	// nothing to degrade into a fallback.
	ErrNoData = errors.New("no records to analyze")
	// ErrParse means the backend text contains no recoverable JSON object.
	ErrParse = errors.New("backend response is not parseable")
	// ErrValidation means the parsed object is missing a required field
	// even after coercion.
	ErrValidation = errors.New("backend response failed validation")
)
