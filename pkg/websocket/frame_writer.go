package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// AppendFrame appends a single final frame carrying payload to dst and
// returns the extended slice. The frame is masked with *mask when mask is
// non-nil; server-to-client frames pass nil.
//
// Payloads longer than MaxPayloadLength are rejected with a FrameError of
// class ErrOversizedPayload; nothing is appended.
func AppendFrame(dst []byte, op Opcode, payload []byte, mask *[4]byte) ([]byte, error) {
	n := len(payload)
	if n > MaxPayloadLength {
		return dst, &FrameError{Class: ErrOversizedPayload, Err: ErrMessageTooLarge, Opcode: op}
	}

	var lenBits byte
	if mask != nil {
		lenBits = maskBit
	}

	dst = append(dst, finBit|byte(op&opcodeMask))
	if n <= MaxBaseLength {
		dst = append(dst, lenBits|byte(n))
	} else {
		dst = append(dst, lenBits|extended16)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	}

	if mask == nil {
		return append(dst, payload...), nil
	}

	dst = append(dst, mask[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	MaskBytes(*mask, dst[start:])
	return dst, nil
}

// EncodeText encodes payload as an unmasked final text frame.
func EncodeText(payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, headerSize(len(payload))+len(payload)), OpcodeText, payload, nil)
}

// EncodeMasked encodes payload as a final frame masked with a fresh random
// key, as a client must.
func EncodeMasked(op Opcode, payload []byte) ([]byte, error) {
	var key [4]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, err
	}
	return AppendFrame(make([]byte, 0, headerSize(len(payload))+4+len(payload)), op, payload, &key)
}

func headerSize(n int) int {
	if n <= MaxBaseLength {
		return 2
	}
	return 4
}

// FrameWriter writes unmasked text frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter creates a new FrameWriter for writing to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteText encodes payload and hands header and payload to the writer in a
// single Write call.
func (fw *FrameWriter) WriteText(payload []byte) error {
	frame, err := EncodeText(payload)
	if err != nil {
		return err
	}
	_, err = fw.w.Write(frame)
	return err
}
