package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxDataFrameLen is the largest MSG_DATA payload MultiplexWriter emits.
	MaxDataFrameLen = 32 * 1024
)

// MessageFrame is a decoded header plus its payload.
type MessageFrame struct {
	Code    MessageCode
	Payload []byte
}

func NewMessageFrame(code MessageCode, payload []byte) (MessageFrame, error) {
	if uint64(len(payload)) > MaxPayloadLength {
		return MessageFrame{}, &EnvelopeError{Kind: ErrOversizedPayload, Length: uint32(len(payload))}
	}

	if _, err := NewMessageHeader(code, uint32(len(payload))); err != nil {
		return MessageFrame{}, err
	}

	return MessageFrame{Code: code, Payload: payload}, nil
}

// Header returns the header that precedes f on the wire.
func (f MessageFrame) Header() MessageHeader {
	return MessageHeader{code: f.Code, length: uint32(len(f.Payload))}
}

// AppendTo appends the encoded frame to dst.
func (f MessageFrame) AppendTo(dst []byte) []byte {
	header := f.Header().Encode()
	dst = append(dst, header[:]...)
	return append(dst, f.Payload...)
}

// Text returns the payload as a string with any trailing newline removed.
func (f MessageFrame) Text() string {
	return string(RemoveTrailingNewline(f.Payload))
}

// WriteMessage writes a single frame with one Write call so frames from
// concurrent writers never interleave mid frame.
func WriteMessage(w io.Writer, code MessageCode, payload []byte) error {
	frame, err := NewMessageFrame(code, payload)
	if err != nil {
		return err
	}

	_, err = w.Write(frame.AppendTo(make([]byte, 0, HeaderLen+len(payload))))
	return err
}

// ReadMessage reads one frame. EOF before any header byte is returned as
// io.EOF, EOF part way through a frame as io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) (MessageFrame, error) {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return MessageFrame{}, err
	}

	h, err := DecodeMessageHeader(header[:])
	if err != nil {
		return MessageFrame{}, err
	}

	payload := make([]byte, h.PayloadLen())
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return MessageFrame{}, fmt.Errorf("Failed to read %s payload: %w", h.Code(), err)
	}

	return MessageFrame{Code: h.Code(), Payload: payload}, nil
}

// EncodeExitCode renders the payload of a MSG_ERROR_EXIT frame.
func EncodeExitCode(code int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(code))
	return b
}

// DecodeExitCode reads the payload of a MSG_ERROR_EXIT frame. Older peers
// send an empty payload, which maps to 0.
func DecodeExitCode(payload []byte) (int32, error) {
	switch len(payload) {
	case 0:
		return 0, nil
	case 4:
		return int32(binary.LittleEndian.Uint32(payload)), nil
	default:
		return 0, fmt.Errorf("MSG_ERROR_EXIT payload has %d bytes, want 0 or 4", len(payload))
	}
}

// MultiplexWriter wraps plain data in MSG_DATA frames and exposes helpers
// for the out of band message codes.
type MultiplexWriter struct {
	w        io.Writer
	maxFrame int
}

func NewMultiplexWriter(w io.Writer) *MultiplexWriter {
	return &MultiplexWriter{w: w, maxFrame: MaxDataFrameLen}
}

// Write splits p into MSG_DATA frames of at most MaxDataFrameLen bytes.
func (m *MultiplexWriter) Write(p []byte) (int, error) {
	written := 0

	for written < len(p) {
		end := written + m.maxFrame
		if end > len(p) {
			end = len(p)
		}

		if err := WriteMessage(m.w, MsgData, p[written:end]); err != nil {
			return written, err
		}

		written = end
	}

	return written, nil
}

func (m *MultiplexWriter) WriteMessage(code MessageCode, payload []byte) error {
	return WriteMessage(m.w, code, payload)
}

// WriteLog sends text under the message code matching level.
func (m *MultiplexWriter) WriteLog(level LogCode, text string) error {
	code, err := level.AsMessageCode()
	if err != nil {
		return err
	}

	return WriteMessage(m.w, code, []byte(text))
}

func (m *MultiplexWriter) WriteInfo(text string) error {
	return m.WriteLog(LogInfo, text)
}

func (m *MultiplexWriter) WriteWarning(text string) error {
	return m.WriteLog(LogWarning, text)
}

func (m *MultiplexWriter) WriteError(text string) error {
	return m.WriteLog(LogError, text)
}

func (m *MultiplexWriter) WriteErrorExit(code int32) error {
	return WriteMessage(m.w, MsgErrorExit, EncodeExitCode(code))
}

// MessageHandler receives every frame that isn't MSG_DATA.
type MessageHandler func(frame MessageFrame) error

// MultiplexReader yields the payloads of MSG_DATA frames as a plain byte
// stream and hands every other frame to its handler.
type MultiplexReader struct {
	r       io.Reader
	handler MessageHandler
	pending []byte
}

func NewMultiplexReader(r io.Reader, handler MessageHandler) *MultiplexReader {
	return &MultiplexReader{r: r, handler: handler}
}

func (m *MultiplexReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(m.pending) == 0 {
		frame, err := ReadMessage(m.r)
		if err != nil {
			return 0, err
		}

		if frame.Code == MsgData {
			m.pending = frame.Payload
			continue
		}

		if m.handler != nil {
			if err := m.handler(frame); err != nil {
				return 0, err
			}
		}
	}

	n := copy(p, m.pending)
	m.pending = m.pending[n:]

	return n, nil
}
