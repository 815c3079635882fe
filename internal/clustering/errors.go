package clustering

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidInput marks data-quality problems (NaN, Inf, degenerate rows).
	// The facade turns these into empty results instead of returning them.
	ErrInvalidInput = errors.New("invalid embedding input")

	// ErrInvalidParams marks caller misuse: bad parameters, ranges or lengths.
	ErrInvalidParams = errors.New("invalid clustering parameters")

	// ErrNumeric marks an unexpected failure inside a numeric backend.
	ErrNumeric = errors.New("numeric failure in clustering backend")
)

// ValidationError describes why an embedding matrix was rejected
type ValidationError struct {
	Row    int    // Offending row, -1 when the problem is matrix-wide
	Col    int    // Offending column, -1 when not applicable
	Reason string // Short description
}

func (e *ValidationError) Error() string {
	switch {
	case e.Row < 0:
		return "invalid embeddings: " + e.Reason
	case e.Col < 0:
		return fmt.Sprintf("invalid embeddings: row %d: %s", e.Row, e.Reason)
	default:
		return fmt.Sprintf("invalid embeddings: row %d col %d: %s", e.Row, e.Col, e.Reason)
	}
}

// Unwrap lets errors.Is match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
