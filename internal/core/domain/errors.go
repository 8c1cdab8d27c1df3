package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedAction marks model output with no recoverable structure.
	ErrMalformedAction = errors.New("malformed action")
	// ErrUnknownFunction marks a request for a function the registry does not hold.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrGeneration marks a failed or timed out text-generation call.
	ErrGeneration = errors.New("text generation failed")
)

// MalformedActionError reports which parsing stage gave up and on what text.
type MalformedActionError struct {
	Stage string // "action", "parameters" or "observation"
	Raw   string
	Err   error
}

func (e *MalformedActionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed %s output", e.Stage)
	}
	return fmt.Sprintf("malformed %s output: %v", e.Stage, e.Err)
}

func (e *MalformedActionError) Unwrap() error { return e.Err }

func (e *MalformedActionError) Is(target error) bool { return target == ErrMalformedAction }

// UnknownFunctionError is raised when parameters are requested for an
// action name that is not registered.
type UnknownFunctionError struct {
	Name  string
	Valid []string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q (valid actions: %s)", e.Name, strings.Join(e.Valid, ", "))
}

func (e *UnknownFunctionError) Is(target error) bool { return target == ErrUnknownFunction }

// IsStructural reports whether err should be charged against the retry
// budget of the reasoning loop.
func IsStructural(err error) bool {
	return errors.Is(err, ErrMalformedAction) ||
		errors.Is(err, ErrUnknownFunction) ||
		errors.Is(err, ErrGeneration)
}
