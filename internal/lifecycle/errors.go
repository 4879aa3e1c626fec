package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// Class classifies a lifecycle failure.
type Class uint8

const (
	// ClassConfiguration means static configuration is invalid.
	ClassConfiguration Class = iota + 1
	// ClassConnectivity means a dependency could not be reached in time.
	ClassConnectivity
	// ClassInvalidState means an operation was invoked in an incompatible state.
	ClassInvalidState
)

func (c Class) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassConnectivity:
		return "connectivity"
	case ClassInvalidState:
		return "invalid state"
	default:
		return "unclassified"
	}
}

// sentinel maps each class onto the errdefs vocabulary so callers can use
// errdefs.IsInvalidArgument and friends.
func (c Class) sentinel() error {
	switch c {
	case ClassConfiguration:
		return errdefs.ErrInvalidArgument
	case ClassConnectivity:
		return errdefs.ErrUnavailable
	case ClassInvalidState:
		return errdefs.ErrFailedPrecondition
	default:
		return errdefs.ErrUnknown
	}
}

// Error is a classified lifecycle failure.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Class.String()
	}
	return e.Class.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class.sentinel()}
	}
	return []error{e.Class.sentinel(), e.Err}
}

// Wrap classifies err. A nil err stays nil and an already classified error is
// returned unchanged.
func Wrap(class Class, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Class: class, Err: err}
}

// ConfigurationErrorf returns a ClassConfiguration error.
func ConfigurationErrorf(format string, args ...any) error {
	return &Error{Class: ClassConfiguration, Err: fmt.Errorf(format, args...)}
}

// ConnectivityErrorf returns a ClassConnectivity error.
func ConnectivityErrorf(format string, args ...any) error {
	return &Error{Class: ClassConnectivity, Err: fmt.Errorf(format, args...)}
}

// InvalidStateErrorf returns a ClassInvalidState error.
func InvalidStateErrorf(format string, args ...any) error {
	return &Error{Class: ClassInvalidState, Err: fmt.Errorf(format, args...)}
}

// ClassOf reports the class of the first lifecycle error in err's chain.
func ClassOf(err error) (Class, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Class, true
	}
	return 0, false
}

// StepError records which step of a composite failed.
type StepError struct {
	Owner     string
	Component string
	Kind      Kind
	Required  bool
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Component, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AggregateError collects every step failure of a phase that continues past
// failures.
type AggregateError struct {
	Phase    string
	Failures []*StepError
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	noun := "steps"
	if len(e.Failures) == 1 {
		noun = "step"
	}
	return fmt.Sprintf("%s: %d %s failed: %s", e.Phase, len(e.Failures), noun, strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}
