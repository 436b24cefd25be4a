package ai

import "errors"

// Sentinel errors for inference failures. All are transient from the
// processor's point of view and consume a retry attempt.
var (
	ErrProviderUnavailable = errors.New("inference provider unreachable")
	ErrInferenceTimeout    = errors.New("inference call timed out")
	ErrInvalidResponse     = errors.New("inference response has no usable verdict")
)
