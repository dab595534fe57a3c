package websocket

import (
	"errors"
	"fmt"
)

// Opcode represents WebSocket frame opcodes per RFC 6455.
type Opcode uint8

// Frame opcodes as defined in RFC 6455 Section 5.2.
const (
	// OpcodeContinuation indicates a continuation frame.
	OpcodeContinuation Opcode = 0x0
	// OpcodeText indicates a text frame.
	OpcodeText Opcode = 0x1
	// OpcodeBinary indicates a binary frame.
	OpcodeBinary Opcode = 0x2
	// OpcodeClose indicates a close frame.
	OpcodeClose Opcode = 0x8
	// OpcodePing indicates a ping frame.
	OpcodePing Opcode = 0x9
	// OpcodePong indicates a pong frame.
	OpcodePong Opcode = 0xA
)

// String returns the string representation of the opcode.
func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "CONTINUATION"
	case OpcodeText:
		return "TEXT"
	case OpcodeBinary:
		return "BINARY"
	case OpcodeClose:
		return "CLOSE"
	case OpcodePing:
		return "PING"
	case OpcodePong:
		return "PONG"
	default:
		return fmt.Sprintf("UNKNOWN(0x%X)", uint8(o))
	}
}

// Frame header bits and length sentinels.
const (
	finBit     = 0x80
	maskBit    = 0x80
	opcodeMask = 0x0F
	lengthMask = 0x7F

	// MaxBaseLength is the largest payload length carried in the 7-bit field.
	MaxBaseLength = 125
	// MaxPayloadLength is the largest payload length this codec supports,
	// the upper bound of the 16-bit extended length.
	MaxPayloadLength = 65535

	extended16 = 126
	extended64 = 127
)

// Frame is one decoded unit of the wire format. It only lives for a single
// decode or encode cycle.
type Frame struct {
	// Fin indicates whether this is the final fragment of a message.
	Fin bool
	// Opcode identifies the type of frame.
	Opcode Opcode
	// Masked indicates whether the payload was masked on the wire.
	Masked bool
	// Mask is the masking key, meaningful only when Masked is set.
	Mask [4]byte
	// Length is the payload length announced by the header.
	Length int
	// Payload contains the unmasked payload data.
	Payload []byte
	// Trailing is the number of bytes already read from the socket past
	// the end of this frame. It is a lower bound: bytes still queued in the
	// socket are not counted. Under single-message traffic it is zero.
	Trailing int
}

// Error classes. Every FrameError matches at least one of them with errors.Is.
var (
	// ErrProtocolViolation marks frames that break the wire rules this
	// codec enforces. The connection cannot be resynchronised afterwards.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrOversizedPayload marks payloads beyond the 16-bit length range.
	ErrOversizedPayload = errors.New("oversized payload")
)

// Frame errors.
var (
	// ErrUnmaskedFrame is returned when a client frame lacks the mask bit.
	ErrUnmaskedFrame = errors.New("client frame is not masked")
	// ErrUnsupportedOpcode is returned for opcodes other than continuation,
	// text, binary and close.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	// ErrBinaryUnsupported is returned for binary frames.
	ErrBinaryUnsupported = errors.New("binary frames are not supported")
	// ErrLength64 is returned when a frame announces a 64-bit payload length.
	// It is an oversized payload and a protocol violation at once: the
	// stream cannot be resynchronised without reading the length.
	ErrLength64 = fmt.Errorf("%w: 64-bit payload length is not supported", ErrProtocolViolation)
	// ErrMessageTooLarge is returned when encoding a payload over 65535 bytes.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrConnectionClosed is returned when the connection is closed.
	ErrConnectionClosed = errors.New("connection closed")
)

// FrameError describes a frame that could not be decoded or encoded.
type FrameError struct {
	// Class is ErrProtocolViolation or ErrOversizedPayload.
	Class error
	// Err is the specific cause.
	Err error
	// Opcode of the offending frame, if known.
	Opcode Opcode
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: %v (opcode %s)", e.Class, e.Err, e.Opcode)
}

func (e *FrameError) Unwrap() []error {
	return []error{e.Class, e.Err}
}

func protocolViolation(err error, op Opcode) *FrameError {
	return &FrameError{Class: ErrProtocolViolation, Err: err, Opcode: op}
}

// MaskBytes XORs b in place with the 4-byte key. Applying it twice with the
// same key restores the original bytes.
func MaskBytes(key [4]byte, b []byte) {
	for i := 0; i < len(b); i++ {
		b[i] ^= key[i%4]
	}
}
