package foxess

import (
	"fmt"
)

// RemoteServiceError is returned when the response envelope carries a
// non-zero errno.
type RemoteServiceError struct {
	Path  string
	Errno int
	Msg   string
}

func (e *RemoteServiceError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("foxess api error %d on %s", e.Errno, e.Path)
	}
	return fmt.Sprintf("foxess api error %d on %s: %s", e.Errno, e.Path, e.Msg)
}

// TransportError wraps failures to get a response at all: DNS, TLS, timeouts
// and non-2xx HTTP statuses.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("foxess %s %s: http %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("foxess %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnknownVariableError is returned by Device.Variable for names discovery
// never registered.
type UnknownVariableError struct {
	Serial string
	Name   string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q on device %s", e.Name, e.Serial)
}
