package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderLen is the size of a multiplexed message header.
	HeaderLen = 4

	// MplexBase is added to the message code to form the header tag.
	MplexBase = 7

	// MaxPayloadLength is the largest payload a single header can describe.
	MaxPayloadLength = 0xFFFFFF

	PayloadMask = MaxPayloadLength
)

var (
	ErrTruncatedHeader    = errors.New("multiplexed header is truncated")
	ErrInvalidTag         = errors.New("multiplexed header tag is below MPLEX_BASE")
	ErrUnknownMessageCode = errors.New("unknown multiplexed message code")
	ErrOversizedPayload   = errors.New("multiplexed payload exceeds the maximum length")
)

// EnvelopeError carries the offending value of a header encode or decode
// failure. Use errors.Is with the ErrTruncatedHeader style sentinels to tell
// the kinds apart.
type EnvelopeError struct {
	Kind error

	// Actual is the number of bytes available for ErrTruncatedHeader.
	Actual int

	// Tag is the raw tag byte for ErrInvalidTag.
	Tag uint8

	// Code is the decoded code for ErrUnknownMessageCode.
	Code uint8

	// Length is the requested payload length for ErrOversizedPayload.
	Length uint32
}

func (e *EnvelopeError) Error() string {
	switch e.Kind {
	case ErrTruncatedHeader:
		return fmt.Sprintf("%s: need %d bytes, have %d", e.Kind, HeaderLen, e.Actual)
	case ErrInvalidTag:
		return fmt.Sprintf("%s: tag %d", e.Kind, e.Tag)
	case ErrUnknownMessageCode:
		return fmt.Sprintf("%s: %d", e.Kind, e.Code)
	case ErrOversizedPayload:
		return fmt.Sprintf("%s: %d > %d", e.Kind, e.Length, MaxPayloadLength)
	default:
		return fmt.Sprintf("envelope error: %v", e.Kind)
	}
}

func (e *EnvelopeError) Unwrap() error {
	return e.Kind
}

// MessageHeader is the 4 byte prefix of every multiplexed frame.
type MessageHeader struct {
	code   MessageCode
	length uint32
}

// NewMessageHeader builds a header, failing when the payload can't be
// described in 24 bits.
func NewMessageHeader(code MessageCode, payloadLen uint32) (MessageHeader, error) {
	if payloadLen > MaxPayloadLength {
		return MessageHeader{}, &EnvelopeError{Kind: ErrOversizedPayload, Length: payloadLen}
	}

	if _, ok := messageCodeNames[code]; !ok {
		return MessageHeader{}, &EnvelopeError{Kind: ErrUnknownMessageCode, Code: uint8(code)}
	}

	return MessageHeader{code: code, length: payloadLen}, nil
}

func (h MessageHeader) Code() MessageCode {
	return h.code
}

func (h MessageHeader) PayloadLen() uint32 {
	return h.length
}

func (h MessageHeader) String() string {
	return fmt.Sprintf("%s(%d)", h.code, h.length)
}

// EncodeRaw returns the header as the host integer before byte ordering.
func (h MessageHeader) EncodeRaw() uint32 {
	return (uint32(MplexBase)+uint32(h.code))<<24 | h.length&PayloadMask
}

// Encode returns the little-endian wire form.
func (h MessageHeader) Encode() [HeaderLen]byte {
	var b [HeaderLen]byte
	binary.LittleEndian.PutUint32(b[:], h.EncodeRaw())
	return b
}

// EncodeInto writes the header into the front of dst.
func (h MessageHeader) EncodeInto(dst []byte) error {
	if len(dst) < HeaderLen {
		return &EnvelopeError{Kind: ErrTruncatedHeader, Actual: len(dst)}
	}

	binary.LittleEndian.PutUint32(dst, h.EncodeRaw())
	return nil
}

// DecodeMessageHeader decodes the first 4 bytes of b. Any bytes after the
// header are ignored.
func DecodeMessageHeader(b []byte) (MessageHeader, error) {
	if len(b) < HeaderLen {
		return MessageHeader{}, &EnvelopeError{Kind: ErrTruncatedHeader, Actual: len(b)}
	}

	return MessageHeaderFromRaw(binary.LittleEndian.Uint32(b))
}

// MessageHeaderFromRaw decodes an already byte-ordered header value.
func MessageHeaderFromRaw(raw uint32) (MessageHeader, error) {
	tag := uint8(raw >> 24)
	if tag < MplexBase {
		return MessageHeader{}, &EnvelopeError{Kind: ErrInvalidTag, Tag: tag}
	}

	code := MessageCode(tag - MplexBase)
	if _, ok := messageCodeNames[code]; !ok {
		return MessageHeader{}, &EnvelopeError{Kind: ErrUnknownMessageCode, Code: uint8(code)}
	}

	return MessageHeader{code: code, length: raw & PayloadMask}, nil
}
