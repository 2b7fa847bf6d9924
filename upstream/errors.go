package upstream

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	ErrEmptyAddress     = errors.New("node address is empty")
	ErrSurroundingSpace = errors.New("node address has surrounding whitespace")
	ErrMissingHost      = errors.New("node address has no host")
	ErrInvalidPort      = errors.New("invalid node port")
)

type ErrorKind int

const (
	// ConnectionError means the connection to the node could not be established.
	ConnectionError ErrorKind = iota
	// InvalidAddress is a node address no connection attempt can succeed with.
	InvalidAddress
	// ParsingAddressFailed is a node address that is not host:port or a unix socket path.
	ParsingAddressFailed
	// TransportFailed is a failure of an established connection.
	TransportFailed
	// InvalidConfig is any other configuration the node connection cannot start with.
	InvalidConfig
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionError:
		return "connection error"
	case InvalidAddress:
		return "invalid address"
	case ParsingAddressFailed:
		return "parsing address failed"
	case TransportFailed:
		return "transport failed"
	case InvalidConfig:
		return "invalid config"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    ErrorKind
	Address string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %s (%s): %v", e.Kind, e.Address, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports a transport failure caused by the connection dropping,
// after which a new connection is expected to work.
func (e *Error) IsTransient() bool {
	return e.Kind == TransportFailed && IsConnectionDropped(e.Err)
}

// IsConnectionDropped recognizes the ways an established connection breaks from the outside:
// the peer closed or reset it, or it timed out.
func IsConnectionDropped(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EPIPE),
		errors.Is(err, net.ErrClosed), errors.Is(err, os.ErrDeadlineExceeded):
		return true
	case errors.As(err, &netErr):
		return netErr.Timeout()
	default:
		return false
	}
}
