package protocol

import (
	"errors"
	"io"
)

// Sniffer classifies the first bytes of a connection while keeping every byte
// it reads so they can be replayed to the handshake code.
//
// The buffer is split in two: the sniffed prefix (the bytes that were needed
// to reach a decision) and the remainder (anything observed after that).
type Sniffer struct {
	detector Detector
	buffered []byte

	// prefixLen counts the classified prefix bytes still held at the front
	// of buffered.
	prefixLen int
}

// SnifferParts is the state of a Sniffer after ownership of its buffer has
// been handed over.
type SnifferParts struct {
	Decision  NegotiationPrologue
	PrefixLen int
	Buffered  []byte
}

func NewSniffer() *Sniffer {
	return &Sniffer{
		buffered: make([]byte, 0, LegacyDaemonPrefixLen),
	}
}

// Observe appends chunk to the buffer and feeds it to the detector. It
// returns the current decision and how many bytes of chunk were needed to
// classify the stream; the rest of chunk is kept as remainder.
func (s *Sniffer) Observe(chunk []byte) (NegotiationPrologue, int) {
	if len(chunk) == 0 {
		return s.detector.Decision(), 0
	}

	decision, consumed := s.detector.Observe(chunk)

	s.buffered = append(s.buffered, chunk...)
	s.prefixLen += consumed

	return decision, consumed
}

func (s *Sniffer) ObserveByte(b byte) (NegotiationPrologue, int) {
	return s.Observe([]byte{b})
}

// ReadPrologue reads from r until the prologue is decided. It never reads
// past the legacy prefix, so nothing beyond the classified bytes is buffered.
func (s *Sniffer) ReadPrologue(r io.Reader) (NegotiationPrologue, error) {
	if s.IsDecided() {
		return s.Decision(), nil
	}

	var scratch [LegacyDaemonPrefixLen]byte

	for {
		want := 1
		if remaining, ok := s.detector.LegacyPrefixRemaining(); ok {
			want = remaining
		}

		n, err := r.Read(scratch[:want])
		if n > 0 {
			if decision, _ := s.Observe(scratch[:n]); decision.IsDecided() {
				return decision, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return NeedMoreData, ErrPrologueEOF
			}

			return NeedMoreData, err
		}
	}
}

func (s *Sniffer) Decision() NegotiationPrologue {
	return s.detector.Decision()
}

func (s *Sniffer) IsDecided() bool {
	return s.Decision().IsDecided()
}

func (s *Sniffer) RequiresMoreData() bool {
	return !s.IsDecided()
}

func (s *Sniffer) IsLegacy() bool {
	return s.Decision() == LegacyASCII
}

func (s *Sniffer) IsBinary() bool {
	return s.Decision() == Binary
}

func (s *Sniffer) LegacyPrefixRemaining() (int, bool) {
	return s.detector.LegacyPrefixRemaining()
}

// Buffered returns every byte currently held, prefix first. The slice
// aliases the sniffer's buffer.
func (s *Sniffer) Buffered() []byte {
	return s.buffered
}

func (s *Sniffer) SniffedPrefix() []byte {
	return s.buffered[:s.prefixLen]
}

func (s *Sniffer) BufferedRemainder() []byte {
	return s.buffered[s.prefixLen:]
}

func (s *Sniffer) BufferedLen() int {
	return len(s.buffered)
}

func (s *Sniffer) BufferedCap() int {
	return cap(s.buffered)
}

func (s *Sniffer) SniffedPrefixLen() int {
	return s.prefixLen
}

// Reset empties the sniffer so it can classify a new connection. A buffer
// that grew past the canonical prologue size is released.
func (s *Sniffer) Reset() {
	s.detector.Reset()
	s.prefixLen = 0

	if cap(s.buffered) != LegacyDaemonPrefixLen {
		s.buffered = make([]byte, 0, LegacyDaemonPrefixLen)
		return
	}

	s.buffered = s.buffered[:0]
}

// IntoParts hands the buffered bytes and decision to the caller and leaves
// the sniffer reset.
func (s *Sniffer) IntoParts() SnifferParts {
	parts := SnifferParts{
		Decision:  s.Decision(),
		PrefixLen: s.prefixLen,
		Buffered:  s.buffered,
	}

	s.buffered = nil
	s.Reset()

	return parts
}

// Rehydrate restores state previously produced by IntoParts. The prefix
// length is clamped to what the buffer can hold.
func (s *Sniffer) Rehydrate(decision NegotiationPrologue, prefixLen int, buffered []byte) {
	s.detector.Reset()
	s.buffered = append(make([]byte, 0, maxInt(len(buffered), LegacyDaemonPrefixLen)), buffered...)

	switch decision {
	case Binary:
		s.detector = Detector{decision: Binary, seen: 1}
	case LegacyASCII:
		s.detector = Detector{decision: LegacyASCII, seen: LegacyDaemonPrefixLen}
	default:
		s.prefixLen = 0
		_, consumed := s.detector.Observe(s.buffered)
		s.prefixLen = consumed
		return
	}

	if prefixLen < 0 {
		prefixLen = 0
	}

	s.prefixLen = minInt(prefixLen, minInt(len(s.buffered), LegacyDaemonPrefixLen))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
