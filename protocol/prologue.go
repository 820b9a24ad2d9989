package protocol

import (
	"errors"
	"fmt"
)

const (
	// LegacyDaemonPrefix starts every legacy daemon greeting.
	LegacyDaemonPrefix = "@RSYNCD:"

	// LegacyDaemonPrefixLen is also the canonical size of a prologue buffer.
	LegacyDaemonPrefixLen = len(LegacyDaemonPrefix)
)

var ErrUnknownPrologue = errors.New("unknown negotiation prologue")

// NegotiationPrologue is the classification of the first bytes a peer sends.
type NegotiationPrologue uint8

const (
	NeedMoreData NegotiationPrologue = iota
	LegacyASCII
	Binary
)

func (p NegotiationPrologue) String() string {
	switch p {
	case NeedMoreData:
		return "need-more-data"
	case LegacyASCII:
		return "legacy-ascii"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("prologue(%d)", uint8(p))
	}
}

func (p NegotiationPrologue) IsDecided() bool {
	return p == LegacyASCII || p == Binary
}

func (p NegotiationPrologue) IsLegacy() bool {
	return p == LegacyASCII
}

func (p NegotiationPrologue) IsBinary() bool {
	return p == Binary
}

// ParseNegotiationPrologue is the inverse of NegotiationPrologue.String.
func ParseNegotiationPrologue(s string) (NegotiationPrologue, error) {
	switch s {
	case "need-more-data":
		return NeedMoreData, nil
	case "legacy-ascii":
		return LegacyASCII, nil
	case "binary":
		return Binary, nil
	default:
		return NeedMoreData, fmt.Errorf("Failed to parse '%s': %w", s, ErrUnknownPrologue)
	}
}

// DetectNegotiationPrologue classifies a complete buffer without keeping any
// state. Legacy is only reported once the whole @RSYNCD: prefix is present.
func DetectNegotiationPrologue(buf []byte) NegotiationPrologue {
	var d Detector
	decision, _ := d.Observe(buf)
	return decision
}

// Detector is the incremental classifier behind Sniffer. It only tracks how
// far into the legacy prefix it has got, it never stores the bytes.
type Detector struct {
	decision NegotiationPrologue
	seen     int
}

// Observe feeds bytes into the detector and returns the decision plus the
// number of bytes that were needed to reach it. Bytes after the decision are
// not counted.
func (d *Detector) Observe(chunk []byte) (NegotiationPrologue, int) {
	consumed := 0

	for _, b := range chunk {
		if d.prefixComplete() {
			break
		}

		d.ObserveByte(b)
		consumed++
	}

	return d.Decision(), consumed
}

// ObserveByte feeds a single byte. Once the prefix is complete further bytes
// are ignored.
func (d *Detector) ObserveByte(b byte) NegotiationPrologue {
	if d.prefixComplete() {
		return d.Decision()
	}

	if d.seen == 0 {
		if b == LegacyDaemonPrefix[0] {
			d.decision = LegacyASCII
		} else {
			d.decision = Binary
		}
	}

	d.seen++

	return d.Decision()
}

// Decision reports LegacyASCII only once all of @RSYNCD: has been seen. A
// byte that diverges from the prefix still counts towards it; the greeting
// parser reports the malformation later.
func (d *Detector) Decision() NegotiationPrologue {
	if d.decision == LegacyASCII && d.seen < LegacyDaemonPrefixLen {
		return NeedMoreData
	}

	return d.decision
}

// PrefixLen is the number of bytes that make up the classified prefix so far.
func (d *Detector) PrefixLen() int {
	return d.seen
}

// LegacyPrefixRemaining returns how many bytes are still needed before a
// legacy decision can be made.
func (d *Detector) LegacyPrefixRemaining() (int, bool) {
	if d.decision != LegacyASCII || d.seen >= LegacyDaemonPrefixLen {
		return 0, false
	}

	return LegacyDaemonPrefixLen - d.seen, true
}

func (d *Detector) Reset() {
	*d = Detector{}
}

func (d *Detector) prefixComplete() bool {
	switch d.decision {
	case Binary:
		return true
	case LegacyASCII:
		return d.seen >= LegacyDaemonPrefixLen
	default:
		return false
	}
}
