package clustering

import "math"

// MinRows is the smallest matrix that can be clustered
const MinRows = 2

// Validate checks an embedding matrix before any clustering attempt.
// It returns a *ValidationError for NaN or Inf values, all-zero rows,
// ragged or zero-width rows, and matrices with fewer than MinRows rows.
// The matrix is never modified.
func Validate(embeddings [][]float64) error {
	if len(embeddings) < MinRows {
		return &ValidationError{Row: -1, Col: -1, Reason: "need at least 2 rows"}
	}

	dims := len(embeddings[0])
	if dims == 0 {
		return &ValidationError{Row: 0, Col: -1, Reason: "zero-dimensional embedding"}
	}

	for i, row := range embeddings {
		if len(row) != dims {
			return &ValidationError{Row: i, Col: -1, Reason: "dimension mismatch"}
		}
		allZero := true
		for j, v := range row {
			if math.IsNaN(v) {
				return &ValidationError{Row: i, Col: j, Reason: "NaN value"}
			}
			if math.IsInf(v, 0) {
				return &ValidationError{Row: i, Col: j, Reason: "infinite value"}
			}
			if v != 0 {
				allZero = false
			}
		}
		// Zero vectors have no direction and break normalised distances
		if allZero {
			return &ValidationError{Row: i, Col: -1, Reason: "all-zero embedding"}
		}
	}

	return nil
}

// dims returns the embedding width, assuming a validated matrix
func dims(embeddings [][]float64) int {
	if len(embeddings) == 0 {
		return 0
	}
	return len(embeddings[0])
}
