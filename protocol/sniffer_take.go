package protocol

import (
	"io"
)

type segment uint8

const (
	segmentPrefix segment = iota
	segmentRemainder
	segmentAll
)

// view returns the bytes a drain of seg would move. An undecided sniffer has
// no prefix or remainder to give away yet.
func (s *Sniffer) view(seg segment) []byte {
	switch seg {
	case segmentPrefix:
		if !s.IsDecided() {
			return nil
		}
		return s.buffered[:s.prefixLen]

	case segmentRemainder:
		if !s.IsDecided() {
			return nil
		}
		return s.buffered[s.prefixLen:]

	default:
		return s.buffered
	}
}

func (s *Sniffer) consume(seg segment) {
	switch seg {
	case segmentPrefix:
		n := copy(s.buffered, s.buffered[s.prefixLen:])
		s.buffered = s.buffered[:n]
		s.prefixLen = 0

	case segmentRemainder:
		s.buffered = s.buffered[:s.prefixLen]

	default:
		s.buffered = s.buffered[:0]
		s.prefixLen = 0
	}
}

func (s *Sniffer) take(seg segment) []byte {
	src := s.view(seg)
	if len(src) == 0 {
		return nil
	}

	out := append([]byte(nil), src...)
	s.consume(seg)

	return out
}

func (s *Sniffer) takeInto(seg segment, dst *[]byte) int {
	src := s.view(seg)
	if len(src) == 0 {
		return 0
	}

	*dst = append((*dst)[:0], src...)
	s.consume(seg)

	return len(*dst)
}

func (s *Sniffer) takeIntoSlice(seg segment, dst []byte) (int, error) {
	src := s.view(seg)
	if len(src) == 0 {
		return 0, nil
	}

	if len(dst) < len(src) {
		return 0, &BufferTooSmallError{Required: len(src), Available: len(dst)}
	}

	n := copy(dst, src)
	s.consume(seg)

	return n, nil
}

func (s *Sniffer) takeIntoWriter(seg segment, w io.Writer) (int, error) {
	src := s.view(seg)
	if len(src) == 0 {
		return 0, nil
	}

	n, err := w.Write(src)
	if err != nil {
		return n, err
	}

	if n != len(src) {
		return n, io.ErrShortWrite
	}

	s.consume(seg)

	return n, nil
}

func (s *Sniffer) takeIntoBuffers(seg segment, bufs [][]byte) (int, error) {
	src := s.view(seg)
	if len(src) == 0 {
		return 0, nil
	}

	available := 0
	for _, buf := range bufs {
		available += len(buf)
	}

	if available < len(src) {
		return 0, &BufferTooSmallError{Required: len(src), Available: available}
	}

	copied := 0
	for _, buf := range bufs {
		if copied == len(src) {
			break
		}
		copied += copy(buf, src[copied:])
	}

	s.consume(seg)

	return copied, nil
}

// TakeSniffedPrefix moves the classified prefix out of the sniffer. It
// returns nil while the sniffer is undecided or once the prefix was taken.
func (s *Sniffer) TakeSniffedPrefix() []byte {
	return s.take(segmentPrefix)
}

// TakeSniffedPrefixInto clears dst and fills it with the prefix.
func (s *Sniffer) TakeSniffedPrefixInto(dst *[]byte) int {
	return s.takeInto(segmentPrefix, dst)
}

// TakeSniffedPrefixIntoSlice copies the prefix into dst. If dst is too small
// a *BufferTooSmallError is returned and the prefix stays buffered.
func (s *Sniffer) TakeSniffedPrefixIntoSlice(dst []byte) (int, error) {
	return s.takeIntoSlice(segmentPrefix, dst)
}

// TakeSniffedPrefixIntoWriter writes the prefix to w. The prefix is only
// dropped once w accepted all of it.
func (s *Sniffer) TakeSniffedPrefixIntoWriter(w io.Writer) (int, error) {
	return s.takeIntoWriter(segmentPrefix, w)
}

// TakeSniffedPrefixIntoBuffers scatters the prefix across bufs in order.
func (s *Sniffer) TakeSniffedPrefixIntoBuffers(bufs [][]byte) (int, error) {
	return s.takeIntoBuffers(segmentPrefix, bufs)
}

// TakeBufferedRemainder moves the bytes observed after classification out
// of the sniffer, leaving the prefix in place.
func (s *Sniffer) TakeBufferedRemainder() []byte {
	return s.take(segmentRemainder)
}

func (s *Sniffer) TakeBufferedRemainderInto(dst *[]byte) int {
	return s.takeInto(segmentRemainder, dst)
}

func (s *Sniffer) TakeBufferedRemainderIntoSlice(dst []byte) (int, error) {
	return s.takeIntoSlice(segmentRemainder, dst)
}

func (s *Sniffer) TakeBufferedRemainderIntoWriter(w io.Writer) (int, error) {
	return s.takeIntoWriter(segmentRemainder, w)
}

func (s *Sniffer) TakeBufferedRemainderIntoBuffers(bufs [][]byte) (int, error) {
	return s.takeIntoBuffers(segmentRemainder, bufs)
}

// TakeBuffered drains every buffered byte, prefix and remainder together.
// The decision is kept.
func (s *Sniffer) TakeBuffered() []byte {
	return s.take(segmentAll)
}

func (s *Sniffer) TakeBufferedInto(dst *[]byte) int {
	return s.takeInto(segmentAll, dst)
}

func (s *Sniffer) TakeBufferedIntoSlice(dst []byte) (int, error) {
	return s.takeIntoSlice(segmentAll, dst)
}

func (s *Sniffer) TakeBufferedIntoWriter(w io.Writer) (int, error) {
	return s.takeIntoWriter(segmentAll, w)
}

func (s *Sniffer) TakeBufferedIntoBuffers(bufs [][]byte) (int, error) {
	return s.takeIntoBuffers(segmentAll, bufs)
}
