package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/luma/ferry/protocol"
)

var ErrUnexpectedPrologue = errors.New("negotiation prologue does not match the requested handshake")

// PrologueMismatchError is returned when a handshake is attempted on a
// stream that was classified as the other style.
type PrologueMismatchError struct {
	Expected protocol.NegotiationPrologue
	Actual   protocol.NegotiationPrologue
}

func (e *PrologueMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, sniffed %s", ErrUnexpectedPrologue, e.Expected, e.Actual)
}

func (e *PrologueMismatchError) Is(target error) bool {
	return target == ErrUnexpectedPrologue
}

// NegotiatedStream owns a transport plus every byte that was read from it
// while sniffing. Reads replay those bytes, in order, before reading from the
// transport again.
type NegotiatedStream struct {
	inner    io.ReadWriter
	decision protocol.NegotiationPrologue

	prefix []byte

	buffer []byte
	pos    int
}

// NegotiatedStreamParts is a NegotiatedStream taken apart so it can be moved
// to another goroutine and rebuilt with IntoStream.
type NegotiatedStreamParts struct {
	Decision protocol.NegotiationPrologue
	Prefix   []byte

	// Buffered holds the bytes that have been read from Inner but not yet
	// handed to a reader.
	Buffered []byte

	Inner io.ReadWriter
}

// SniffNegotiationStream reads from inner until the prologue is decided.
func SniffNegotiationStream(inner io.ReadWriter) (*NegotiatedStream, error) {
	return SniffNegotiationStreamWithSniffer(inner, protocol.NewSniffer())
}

// SniffNegotiationStreamWithSniffer is SniffNegotiationStream with a caller
// supplied sniffer, which is reset first and reset again on return.
func SniffNegotiationStreamWithSniffer(inner io.ReadWriter, sniffer *protocol.Sniffer) (*NegotiatedStream, error) {
	sniffer.Reset()

	decision, err := sniffer.ReadPrologue(inner)
	if err != nil {
		sniffer.Reset()
		return nil, err
	}

	parts := sniffer.IntoParts()

	return &NegotiatedStream{
		inner:    inner,
		decision: decision,
		prefix:   append([]byte(nil), parts.Buffered[:parts.PrefixLen]...),
		buffer:   parts.Buffered,
	}, nil
}

func (s *NegotiatedStream) Decision() protocol.NegotiationPrologue {
	return s.decision
}

// EnsureDecision fails with a *PrologueMismatchError unless the stream was
// classified as expected.
func (s *NegotiatedStream) EnsureDecision(expected protocol.NegotiationPrologue) error {
	if s.decision != expected {
		return &PrologueMismatchError{Expected: expected, Actual: s.decision}
	}

	return nil
}

// SniffedPrefix returns the bytes that classified the stream. It stays
// available after those bytes have been replayed.
func (s *NegotiatedStream) SniffedPrefix() []byte {
	return s.prefix
}

func (s *NegotiatedStream) SniffedPrefixLen() int {
	return len(s.prefix)
}

// Buffered returns the bytes that will be replayed before the transport is
// read again.
func (s *NegotiatedStream) Buffered() []byte {
	return s.buffer[s.pos:]
}

func (s *NegotiatedStream) BufferedLen() int {
	return len(s.buffer) - s.pos
}

func (s *NegotiatedStream) Inner() io.ReadWriter {
	return s.inner
}

// MapInner swaps the transport for one derived from it, keeping the
// buffered bytes.
func (s *NegotiatedStream) MapInner(fn func(io.ReadWriter) io.ReadWriter) {
	s.inner = fn(s.inner)
}

func (s *NegotiatedStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if s.pos < len(s.buffer) {
		n := copy(p, s.buffer[s.pos:])
		s.pos += n
		s.compact()
		return n, nil
	}

	return s.inner.Read(p)
}

func (s *NegotiatedStream) Write(p []byte) (int, error) {
	return s.inner.Write(p)
}

// Close closes the transport when it supports it.
func (s *NegotiatedStream) Close() error {
	if closer, ok := s.inner.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// ReadLine returns the next '\n' terminated line, newline included. Lines
// longer than limit fail with protocol.ErrLineTooLong; EOF before the newline
// fails with protocol.ErrLegacyLineEOF. Bytes read past the newline stay
// buffered for the next read.
func (s *NegotiatedStream) ReadLine(limit int) (string, error) {
	var scratch [256]byte

	for {
		pending := s.buffer[s.pos:]

		if i := bytes.IndexByte(pending, '\n'); i >= 0 {
			if i+1 > limit {
				return "", protocol.ErrLineTooLong
			}

			line := string(pending[:i+1])
			s.pos += i + 1
			s.compact()

			return line, nil
		}

		if len(pending) >= limit {
			return "", protocol.ErrLineTooLong
		}

		want := limit - len(pending)
		if want > len(scratch) {
			want = len(scratch)
		}

		n, err := s.inner.Read(scratch[:want])
		s.buffer = append(s.buffer, scratch[:n]...)

		if err != nil {
			if bytes.IndexByte(scratch[:n], '\n') >= 0 {
				// Hand out the complete line now, the error will
				// surface on the next read.
				continue
			}

			if errors.Is(err, io.EOF) {
				return "", protocol.ErrLegacyLineEOF
			}

			return "", err
		}
	}
}

// IntoParts takes the stream apart. The stream must not be used afterwards.
func (s *NegotiatedStream) IntoParts() NegotiatedStreamParts {
	parts := NegotiatedStreamParts{
		Decision: s.decision,
		Prefix:   s.prefix,
		Buffered: append([]byte(nil), s.buffer[s.pos:]...),
		Inner:    s.inner,
	}

	*s = NegotiatedStream{}

	return parts
}

// IntoStream rebuilds the stream the parts were taken from.
func (p NegotiatedStreamParts) IntoStream() *NegotiatedStream {
	return &NegotiatedStream{
		inner:    p.Inner,
		decision: p.Decision,
		prefix:   p.Prefix,
		buffer:   p.Buffered,
	}
}

// Clone copies the buffered bytes. The transport is shared.
func (p NegotiatedStreamParts) Clone() NegotiatedStreamParts {
	return NegotiatedStreamParts{
		Decision: p.Decision,
		Prefix:   append([]byte(nil), p.Prefix...),
		Buffered: append([]byte(nil), p.Buffered...),
		Inner:    p.Inner,
	}
}

// compact drops the replay buffer once it has been fully read so it doesn't
// grow for the life of the connection.
func (s *NegotiatedStream) compact() {
	if s.pos == len(s.buffer) {
		s.buffer = s.buffer[:0]
		s.pos = 0
	}
}
