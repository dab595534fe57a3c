package websocket

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// DecodeState is a step of the frame decoder.
type DecodeState uint8

// Decoder states, visited in order for every frame.
const (
	StateAwaitingHeader DecodeState = iota
	StateAwaitingLength
	StateAwaitingMask
	StateAwaitingPayload
	StateComplete
)

func (s DecodeState) String() string {
	switch s {
	case StateAwaitingHeader:
		return "AWAITING_HEADER"
	case StateAwaitingLength:
		return "AWAITING_LENGTH"
	case StateAwaitingMask:
		return "AWAITING_MASK"
	case StateAwaitingPayload:
		return "AWAITING_PAYLOAD"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ErrMaskedServerFrame is returned by a client-role reader when the server
// masked its frame.
var ErrMaskedServerFrame = errors.New("server frame is masked")

// FrameReader decodes frames sequentially from a byte stream, one frame per
// ReadFrame call. It is not safe for concurrent use.
type FrameReader struct {
	r *bufio.Reader
	// clientFrames is set when reading frames sent by a client, which
	// must be masked. Frames sent by a server must not be.
	clientFrames bool
	state        DecodeState
}

// NewFrameReader creates a FrameReader that decodes client-to-server frames
// from r. If r is already a *bufio.Reader it is used directly so that bytes
// buffered during the handshake are not lost.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: asBuffered(r), clientFrames: true}
}

// newServerFrameReader creates a FrameReader for the client role.
func newServerFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: asBuffered(r)}
}

func asBuffered(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(r)
}

// State returns the step the decoder stopped at. After a successful
// ReadFrame it is StateComplete; after an error it names the step that
// failed.
func (fr *FrameReader) State() DecodeState {
	return fr.state
}

// Buffered returns the number of bytes read from the stream but not yet
// decoded.
func (fr *FrameReader) Buffered() int {
	return fr.r.Buffered()
}

// ReadFrame decodes the next frame.
//
// A close frame is returned as soon as its header byte is read; the rest of
// it is discarded because the connection is about to be closed. Binary,
// ping, pong and reserved opcodes, unmasked client frames and 64-bit
// lengths yield a *FrameError and leave the stream unusable.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	f := &Frame{}
	fr.state = StateAwaitingHeader

	for {
		var err error
		switch fr.state {
		case StateAwaitingHeader:
			err = fr.readHeader(f)
		case StateAwaitingLength:
			err = fr.readLength(f)
		case StateAwaitingMask:
			err = fr.readMask(f)
		case StateAwaitingPayload:
			err = fr.readPayload(f)
		case StateComplete:
			f.Trailing = fr.r.Buffered()
			return f, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (fr *FrameReader) readHeader(f *Frame) error {
	b, err := fr.r.ReadByte()
	if err != nil {
		return err
	}

	// RSV1-3 are ignored.
	f.Fin = b&finBit != 0
	f.Opcode = Opcode(b & opcodeMask)

	switch f.Opcode {
	case OpcodeClose:
		fr.state = StateComplete
	case OpcodeText, OpcodeContinuation:
		fr.state = StateAwaitingLength
	case OpcodeBinary:
		return protocolViolation(ErrBinaryUnsupported, f.Opcode)
	default:
		return protocolViolation(ErrUnsupportedOpcode, f.Opcode)
	}
	return nil
}

func (fr *FrameReader) readLength(f *Frame) error {
	b, err := fr.r.ReadByte()
	if err != nil {
		return err
	}

	f.Masked = b&maskBit != 0
	if fr.clientFrames && !f.Masked {
		return protocolViolation(ErrUnmaskedFrame, f.Opcode)
	}
	if !fr.clientFrames && f.Masked {
		return protocolViolation(ErrMaskedServerFrame, f.Opcode)
	}

	switch base := int(b & lengthMask); base {
	case extended16:
		var ext [2]byte
		if _, err := io.ReadFull(fr.r, ext[:]); err != nil {
			return err
		}
		f.Length = int(binary.BigEndian.Uint16(ext[:]))
	case extended64:
		return &FrameError{Class: ErrOversizedPayload, Err: ErrLength64, Opcode: f.Opcode}
	default:
		f.Length = base
	}

	if f.Masked {
		fr.state = StateAwaitingMask
	} else {
		fr.state = StateAwaitingPayload
	}
	return nil
}

func (fr *FrameReader) readMask(f *Frame) error {
	if _, err := io.ReadFull(fr.r, f.Mask[:]); err != nil {
		return err
	}
	fr.state = StateAwaitingPayload
	return nil
}

func (fr *FrameReader) readPayload(f *Frame) error {
	f.Payload = make([]byte, f.Length)
	if _, err := io.ReadFull(fr.r, f.Payload); err != nil {
		return err
	}
	if f.Masked {
		MaskBytes(f.Mask, f.Payload)
	}
	fr.state = StateComplete
	return nil
}
