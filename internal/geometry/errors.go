package geometry

import "errors"

var (
	// ErrAlignmentFailed is returned when no trustworthy homography could be fitted.
	ErrAlignmentFailed = errors.New("alignment failed")
	ErrTooFewPoints    = errors.New("at least four point pairs are required")
	ErrSingular        = errors.New("matrix is singular")
	ErrDegenerate      = errors.New("degenerate point configuration")
)
