package server

// ProtocolErrorCode enumerates the guest-facing wl_surface error codes
// this core can post (spec.md §4.1 "Error conditions").
type ProtocolErrorCode uint32

const (
	ErrInvalidScale  ProtocolErrorCode = 0
	ErrInvalidOffset ProtocolErrorCode = 3
)

// ProtocolError is posted on the offending resource when the guest's
// protocol version supports a typed error; otherwise the caller must
// terminate the client with an implementation error (spec.md §7
// "Protocol errors").
type ProtocolError struct {
	Code    ProtocolErrorCode
	Message string
}

func (e *ProtocolError) Error() string { return e.Message }
