package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidVarint = errors.New("invalid rsync varint")

// varintExtra maps the top bits of a varint's first byte onto the number of
// bytes that follow it.
func varintExtra(first byte) int {
	switch {
	case first < 0x80:
		return 0
	case first < 0xC0:
		return 1
	case first < 0xE0:
		return 2
	case first < 0xF0:
		return 3
	case first < 0xF8:
		return 4
	case first < 0xFC:
		return 5
	default:
		return 6
	}
}

// AppendVarint appends the rsync varint encoding of v to dst. Small values
// take a single byte; the high bits of the first byte count the extra bytes.
func AppendVarint(dst []byte, v int32) []byte {
	var b [5]byte
	binary.LittleEndian.PutUint32(b[1:], uint32(v))

	cnt := 4
	for cnt > 1 && b[cnt] == 0 {
		cnt--
	}

	bit := byte(1) << uint(8-cnt)

	switch {
	case b[cnt] >= bit:
		cnt++
		b[0] = ^(bit - 1)
	case cnt > 1:
		b[0] = b[cnt] | ^(bit*2 - 1)
	default:
		b[0] = b[cnt]
	}

	return append(dst, b[:cnt]...)
}

func WriteVarint(w io.Writer, v int32) error {
	_, err := w.Write(AppendVarint(make([]byte, 0, 5), v))
	return err
}

// DecodeVarint decodes a varint from the front of buf and returns the value
// plus the unread bytes.
func DecodeVarint(buf []byte) (int32, []byte, error) {
	if len(buf) == 0 {
		return 0, buf, io.ErrUnexpectedEOF
	}

	extra := varintExtra(buf[0])
	if extra > 4 {
		return 0, buf, fmt.Errorf("%w: first byte 0x%02x announces %d extra bytes", ErrInvalidVarint, buf[0], extra)
	}

	if len(buf) < 1+extra {
		return 0, buf, io.ErrUnexpectedEOF
	}

	return assembleVarint(buf[0], buf[1:1+extra]), buf[1+extra:], nil
}

func ReadVarint(r io.Reader) (int32, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}

	extra := varintExtra(first[0])
	if extra > 4 {
		return 0, fmt.Errorf("%w: first byte 0x%02x announces %d extra bytes", ErrInvalidVarint, first[0], extra)
	}

	var rest [4]byte
	if _, err := io.ReadFull(r, rest[:extra]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}

	return assembleVarint(first[0], rest[:extra]), nil
}

func assembleVarint(first byte, rest []byte) int32 {
	var u [5]byte

	extra := len(rest)
	if extra == 0 {
		u[0] = first
	} else {
		bit := byte(1) << uint(8-extra)
		copy(u[:], rest)
		u[extra] = first & (bit - 1)
	}

	return int32(binary.LittleEndian.Uint32(u[:4]))
}
