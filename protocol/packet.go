package protocol

import (
	"bytes"
	"fmt"
)

// Type is the packet type tag carried in every frame.
type Type int32

// Packet types. The set is closed: any other tag on the wire is rejected.
const (
	TypeMultiPacketResponse Type = 0 // Response (or response fragment) from the server
	TypeCommand             Type = 2 // Command request, also the server's auth response
	TypeLogin               Type = 3 // Login request carrying the password
)

// AuthFailedID is the request id a server answers with when authentication fails.
// It is never allocated for outgoing requests.
const AuthFailedID int32 = -1

// Wire layout constants.
const (
	LengthSize     = 4                // Length prefix, not counted in the length itself
	HeaderSize     = 8                // Request id + type
	MinFrameLength = HeaderSize + 1   // Empty payload plus terminator
	MaxFrameLength = 10 * 1024 * 1024 // Default connection ceiling, see CheckFrameLimit
	MaxPayload     = 4096             // De facto protocol payload ceiling
	frameOverhead  = LengthSize + HeaderSize + 1
)

// ParseType converts a wire tag into a Type.
func ParseType(tag int32) (Type, error) {
	switch t := Type(tag); t {
	case TypeMultiPacketResponse, TypeCommand, TypeLogin:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownPacketType, tag)
	}
}

// String returns a string representation of the packet type
func (t Type) String() string {
	switch t {
	case TypeMultiPacketResponse:
		return "multi-packet-response"
	case TypeCommand:
		return "command"
	case TypeLogin:
		return "login"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// Packet is one protocol unit, encoded as exactly one frame.
type Packet struct {
	ID      int32
	Type    Type
	Payload []byte
}

// NewLogin builds a login packet for the given request id.
func NewLogin(id int32, password string) Packet {
	return Packet{ID: id, Type: TypeLogin, Payload: []byte(password)}
}

// NewCommand builds a command packet for the given request id.
func NewCommand(id int32, command string) Packet {
	return Packet{ID: id, Type: TypeCommand, Payload: []byte(command)}
}

// NewMarker builds the empty response-typed packet some servers echo back verbatim.
func NewMarker(id int32) Packet {
	return Packet{ID: id, Type: TypeMultiPacketResponse}
}

// Validate checks that the packet can be put on the wire.
func (p Packet) Validate() error {
	if _, err := ParseType(int32(p.Type)); err != nil {
		return err
	}
	if i := bytes.IndexByte(p.Payload, 0); i >= 0 {
		return fmt.Errorf("%w at offset %d", ErrEmbeddedNull, i)
	}
	return nil
}

// Body returns the payload as a string.
func (p Packet) Body() string {
	return string(p.Payload)
}

// FrameLength returns the value of the length field for this packet.
func (p Packet) FrameLength() int32 {
	return int32(HeaderSize + len(p.Payload) + 1)
}
