package apptrust

import (
	"errors"
	"fmt"
)

var (
	ErrBaseURLEmpty     = fmt.Errorf("apptrust base URL is empty")
	ErrApplicationEmpty = fmt.Errorf("application key is empty")
	ErrVersionEmpty     = fmt.Errorf("application version is empty")
	ErrTokenEmpty       = fmt.Errorf("access token is empty")

	// ErrUnavailable is matched by every UnavailableError. Callers treat it as "no information".
	ErrUnavailable = errors.New("version summary unavailable")
	// ErrTransitionFailed is matched by every TransitionError. It's fatal for the current run.
	ErrTransitionFailed = errors.New("transition failed")
)

// UnavailableReason tells apart the ways a summary fetch can fail.
type UnavailableReason string

const (
	ReasonNotFound  UnavailableReason = "NotFound"
	ReasonStatus    UnavailableReason = "UnexpectedStatus"
	ReasonTransport UnavailableReason = "Transport"
	ReasonMalformed UnavailableReason = "MalformedBody"
)

// UnavailableError is returned when the state of a version could not be read.
type UnavailableError struct {
	Reason     UnavailableReason
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *UnavailableError) Error() string {
	switch e.Reason {
	case ReasonNotFound, ReasonStatus:
		return fmt.Sprintf("%s: GET %s returned %d: %s", e.Reason, e.URL, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: GET %s: %v", e.Reason, e.URL, e.Err)
	}
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// TransitionError is returned when the remote service didn't accept a state changing call. The message carries
// everything an operator needs to see why the call was rejected.
type TransitionError struct {
	Operation  string
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s %s: %v", e.Operation, e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s failed: %s %s returned %d: %s", e.Operation, e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrTransitionFailed
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsConflict returns true if the remote service rejected the call because another promotion is in progress.
func IsConflict(err error) bool {
	var terr *TransitionError
	return errors.As(err, &terr) && terr.StatusCode == 409
}
