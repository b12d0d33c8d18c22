package job

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrPreconditionFailed is returned when a conditional update does not
	// match the job's current state. It is the canonical signal that another
	// writer won the transition, or that a stale command was re-issued.
	ErrPreconditionFailed = errors.New("job state has changed")

	// ErrUnauthenticated is returned when no user identity is bound to the
	// operation. No store call is made in that case.
	ErrUnauthenticated = errors.New("user not logged in")
)

// ValidationError reports malformed or empty input. It is detected locally
// and never reaches the store.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// TransportError wraps a failure to reach the store or a dropped
// subscription.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "store unreachable: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a transport failure.
func NewTransportError(err error) error {
	return &TransportError{Err: err}
}
