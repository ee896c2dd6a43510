//go:build !withcv

package cvbridge

import "panofuse/internal/backend"

// Enabled reports whether OpenCV backends were compiled in.
const Enabled = false

// Register leaves r unchanged.
func Register(r *backend.Registry) {}
