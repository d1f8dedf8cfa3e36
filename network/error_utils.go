package network

import (
	"context"
	"errors"
	"net"
)

// IsTransportError checks if an error is a transport open failure
func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsProtocolError checks if an error is a codec or framing setup failure
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// IsAddressesExhausted checks if every endpoint failed
func IsAddressesExhausted(err error) bool {
	var target *AddressesExhaustedError
	return errors.As(err, &target)
}

// IsTimeoutError checks if an error is a timeout, either from a context
// deadline or from the network layer
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// EndpointOf returns the endpoint recorded in a transport or protocol error.
func EndpointOf(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Endpoint
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Endpoint
	}
	return ""
}
