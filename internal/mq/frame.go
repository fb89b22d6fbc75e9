package mq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// FrameHeaderSize is the size of the frame header in bytes:
	// 4 bytes frame length + 1 byte recipient class + 1 byte op code.
	FrameHeaderSize = 6

	// MaxFrameSize is the maximum allowed frame size (including header).
	MaxFrameSize = 64 * 1024
)

// Frame is one message as it travels over the bus.
type Frame struct {
	Payload []byte
	To      Class
	Op      OpCode
}

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// WriteFrame writes a length-prefixed frame to w.
// Wire format: [4-byte length (big-endian)][1-byte class][1-byte op][payload]
// The length field covers class, op and payload.
//
//nolint:gosec // G115: payload length bounded by MaxFrameSize check
func WriteFrame(w io.Writer, f Frame) error {
	totalLen := uint32(2 + len(f.Payload))
	if totalLen+4 > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, FrameHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], totalLen)
	buf[4] = byte(f.To)
	buf[5] = byte(f.Op)
	copy(buf[FrameHeaderSize:], f.Payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a length-prefixed frame from r. A clean end of stream
// before the header returns io.EOF.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	totalLen := binary.BigEndian.Uint32(header[0:4])
	if totalLen+4 > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	if totalLen < 2 {
		return Frame{}, fmt.Errorf("frame too small: length %d", totalLen)
	}

	f := Frame{
		To: Class(header[4]),
		Op: OpCode(header[5]),
	}

	if payloadLen := totalLen - 2; payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}

	return f, nil
}
