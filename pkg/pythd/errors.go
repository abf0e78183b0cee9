package pythd

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost is returned by every call made, or pending, after the
	// connection with pythd dropped.
	ErrConnectionLost = errors.New("connection with pythd lost")
	// ErrNotConnected is returned when making calls before Connect.
	ErrNotConnected = errors.New("client not connected")
	// ErrAlreadyConnected is returned when calling Connect twice.
	ErrAlreadyConnected = errors.New("client already connected")
	// ErrNegativeConfidence is returned by UpdatePrice if conf is negative.
	ErrNegativeConfidence = errors.New("confidence must not be negative")
)

// RPCError is an error returned by pythd in reply to a request.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("pythd error %d: %s", e.Code, e.Message)
}
