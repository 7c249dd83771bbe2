//go:build !darwin && !linux

package keepawake

import (
	"context"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// NewDefaultAdapter returns an adapter that always reports unsupported.
func NewDefaultAdapter() Adapter {
	return unsupportedAdapter{}
}

type unsupportedAdapter struct{}

func (unsupportedAdapter) Acquire(context.Context) (Handle, error) {
	return nil, apperrors.New(apperrors.CodeKeepAwakeUnsupported, "keep-awake is unsupported on this host")
}
