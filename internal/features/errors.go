package features

import "errors"

var (
	// ErrInsufficientCorrespondence means fewer accepted pairs than the configured minimum.
	ErrInsufficientCorrespondence = errors.New("insufficient correspondences")
	ErrEmptyImage                 = errors.New("empty image")
	ErrDescriptorLength           = errors.New("descriptor length mismatch")
)
