package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTruncatedFrame    = errors.New("protocol: truncated frame")
	ErrUnknownPacketType = errors.New("protocol: unknown packet type")
	ErrMalformedFrame    = errors.New("protocol: malformed frame")
	ErrEmbeddedNull      = errors.New("protocol: payload contains null byte")
)

// FramingError reports a frame the peer sent that cannot be trusted.
// Kind is one of ErrTruncatedFrame, ErrUnknownPacketType or ErrMalformedFrame.
type FramingError struct {
	Kind   error
	Length int32 // declared length, 0 if the length field was not read
	Err    error // underlying cause, may be nil
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v (length %d): %v", e.Kind, e.Length, e.Err)
	}
	return fmt.Sprintf("%v (length %d)", e.Kind, e.Length)
}

func (e *FramingError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// IsFramingError reports whether err was caused by a malformed frame.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

func framingError(kind error, length int32, cause error) error {
	return &FramingError{Kind: kind, Length: length, Err: cause}
}
