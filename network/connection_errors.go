package network

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEndpoints is returned when a factory is built without endpoints.
	ErrNoEndpoints = errors.New("at least one endpoint is required")
)

// TransportError reports a failure to open the byte stream to an endpoint:
// refusal, unreachable host or connect timeout.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error connecting to %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a failure while wrapping an open socket in framing
// and codec layers, including any handshake they perform.
type ProtocolError struct {
	Endpoint string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol setup error on %s: %v", e.Endpoint, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// AddressesExhaustedError is returned when every configured endpoint failed.
// Causes holds one error per endpoint in endpoint order.
type AddressesExhaustedError struct {
	Causes []error
}

func (e *AddressesExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d endpoints failed", len(e.Causes))
	for i, cause := range e.Causes {
		fmt.Fprintf(&b, "; [%d] %v", i, cause)
	}
	return b.String()
}

// Unwrap exposes every cause to errors.Is and errors.As.
func (e *AddressesExhaustedError) Unwrap() []error {
	return e.Causes
}

// Endpoints returns the endpoint of each cause, in order. Causes that do not
// carry an endpoint yield an empty string.
func (e *AddressesExhaustedError) Endpoints() []string {
	eps := make([]string, len(e.Causes))
	for i, cause := range e.Causes {
		eps[i] = EndpointOf(cause)
	}
	return eps
}
