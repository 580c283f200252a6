package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is matched by every *IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal stage transition")

	// ErrProviderUnavailable means an optional provider isn't configured.
	// It selects the degraded path and is never returned from a run.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderFailure is matched by every *ProviderError.
	ErrProviderFailure = errors.New("provider failure")

	// ErrMalformedOutput means a provider reply could not be parsed.
	// Callers recover with a default instead of failing the run.
	ErrMalformedOutput = errors.New("malformed provider output")

	ErrProjectNotFound = errors.New("project not found")
	ErrRunInProgress   = errors.New("run already in progress")
)

// IllegalTransitionError carries the rejected stage pair.
type IllegalTransitionError struct {
	From Stage
	To   Stage
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition: %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ProviderError wraps a transport or provider-side failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailure
}

func providerError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}
