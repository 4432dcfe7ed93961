package dimension

import "errors"

var (
	// ErrConstraint is an enumeration or range violation with no fallback.
	ErrConstraint = errors.New("constraint violation")
	// ErrResolutionRace means neither the insert nor the follow-up lookup
	// produced a row. The resolver retries once before surfacing it.
	ErrResolutionRace = errors.New("dimension resolution race")
	ErrUnknownKind    = errors.New("unknown dimension kind")
)
