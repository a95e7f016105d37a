package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire format (little endian):
// [4 bytes length][4 bytes request id][4 bytes type][payload][0x00]
// The length counts every byte after the length field itself.

// Encode serializes a packet into a newly allocated frame.
func Encode(p Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return AppendPacket(make([]byte, 0, frameOverhead+len(p.Payload)), p), nil
}

// AppendPacket appends the frame for p to dst. The packet is not validated.
func AppendPacket(dst []byte, p Packet) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.FrameLength()))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.ID))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Type))
	dst = append(dst, p.Payload...)
	return append(dst, 0)
}

// WritePacket writes one frame to the writer using buffer pooling,
// so the whole frame reaches the writer in a single Write call.
func WritePacket(w io.Writer, p Packet) error {
	if err := p.Validate(); err != nil {
		return err
	}

	buf := GetBufferWithSize(frameOverhead + len(p.Payload))
	defer PutBuffer(buf)

	var header [LengthSize + HeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(p.FrameLength()))
	binary.LittleEndian.PutUint32(header[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(header[8:12], uint32(p.Type))

	buf.Write(header[:])
	buf.Write(p.Payload)
	buf.WriteByte(0)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// ReadPacket reads exactly one frame from the reader.
// A clean end of stream before the length field is returned as io.EOF.
// The frame body is accumulated in a pooled buffer as bytes arrive, so a
// declared length larger than the stream fails with ErrTruncatedFrame
// without allocating the declared size up front.
func ReadPacket(r io.Reader) (Packet, error) {
	var lengthField [LengthSize]byte
	if _, err := io.ReadFull(r, lengthField[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, framingError(ErrTruncatedFrame, 0, err)
		}
		return Packet{}, err
	}

	length := int32(binary.LittleEndian.Uint32(lengthField[:]))
	if err := checkLength(length); err != nil {
		return Packet{}, err
	}

	buf := GetBufferWithSize(min(int(length), MediumBufferSize))
	defer PutBuffer(buf)

	n, err := io.CopyN(buf, r, int64(length))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, framingError(ErrTruncatedFrame, length,
				fmt.Errorf("got %d of %d bytes", n, length))
		}
		return Packet{}, err
	}

	return parseBody(length, buf.Bytes())
}

// Decode parses one frame from the start of data and returns the packet
// together with the number of bytes the frame occupied.
func Decode(data []byte) (Packet, int, error) {
	if len(data) < LengthSize {
		return Packet{}, 0, framingError(ErrTruncatedFrame, 0,
			fmt.Errorf("got %d bytes of length field", len(data)))
	}

	length := int32(binary.LittleEndian.Uint32(data[:LengthSize]))
	if err := checkLength(length); err != nil {
		return Packet{}, 0, err
	}

	end := LengthSize + int(length)
	if len(data) < end {
		return Packet{}, 0, framingError(ErrTruncatedFrame, length,
			fmt.Errorf("got %d of %d bytes", len(data)-LengthSize, length))
	}

	p, err := parseBody(length, data[LengthSize:end])
	if err != nil {
		return Packet{}, 0, err
	}
	return p, end, nil
}

func checkLength(length int32) error {
	if length < MinFrameLength {
		return framingError(ErrMalformedFrame, length,
			fmt.Errorf("length below minimum %d", MinFrameLength))
	}
	return nil
}

// PeekLength returns the declared length of the next frame without
// consuming it.
func PeekLength(r *bufio.Reader) (int32, error) {
	field, err := r.Peek(LengthSize)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(field)), nil
}

// CheckFrameLimit rejects a declared length above limit. The codec itself
// accepts any length; callers that need a ceiling apply it before reading.
func CheckFrameLimit(length, limit int32) error {
	if limit > 0 && length > limit {
		return framingError(ErrMalformedFrame, length,
			fmt.Errorf("length exceeds limit %d", limit))
	}
	return nil
}

// parseBody decodes id, type and payload from exactly one frame body.
// Bytes after the first terminator belong to this frame and are ignored.
func parseBody(length int32, body []byte) (Packet, error) {
	id := int32(binary.LittleEndian.Uint32(body[0:4]))
	tag := int32(binary.LittleEndian.Uint32(body[4:8]))

	t, err := ParseType(tag)
	if err != nil {
		return Packet{}, framingError(ErrUnknownPacketType, length, fmt.Errorf("tag %d", tag))
	}

	rest := body[HeaderSize:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return Packet{}, framingError(ErrMalformedFrame, length, errors.New("missing payload terminator"))
	}

	return Packet{
		ID:      id,
		Type:    t,
		Payload: bytes.Clone(rest[:end]),
	}, nil
}
