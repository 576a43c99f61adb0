package platform

import (
	"errors"

	"github.com/randalmurphal/platformcore/pkg/platform/guard"
)

// Sentinel errors for the pipeline lifecycle and stages.
var (
	// ErrPipelineStopped indicates Start was called after Stop.
	ErrPipelineStopped = errors.New("pipeline already stopped")

	// ErrMalformedPayload indicates a bus payload could not be parsed.
	ErrMalformedPayload = errors.New("malformed payload")
)

// PanicError captures a panic recovered from a tick, job or subscriber.
type PanicError = guard.PanicError
