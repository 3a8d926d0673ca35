package ai

import "fmt"

// ValidationError reports malformed capability input. It is always raised
// before any network call is made.
type ValidationError struct {
	Capability string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid input: %v", e.Capability, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UpstreamError reports a completion-service failure: unreachable, timed
// out, or a reply that cannot be parsed or validated against the output
// schema.
type UpstreamError struct {
	Capability string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream failure: %v", e.Capability, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func validationErr(capability string, err error) error {
	return &ValidationError{Capability: capability, Err: err}
}

func upstreamErr(capability string, err error) error {
	return &UpstreamError{Capability: capability, Err: err}
}
