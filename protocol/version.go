package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	oldestProtocol uint8 = 28
	newestProtocol uint8 = 32

	// binaryNegotiationFirst is the first protocol that exchanges versions
	// as raw integers rather than the @RSYNCD: text greeting.
	binaryNegotiationFirst uint8 = 30
)

// ProtocolVersion is an rsync protocol version that ferry can speak.
//
// The zero value is not a valid version. Values are only produced by the
// constructors in this package so anything held in a ProtocolVersion is
// guaranteed to be in the supported range.
type ProtocolVersion struct {
	v uint8
}

var (
	ProtocolVersion28 = ProtocolVersion{28}
	ProtocolVersion29 = ProtocolVersion{29}
	ProtocolVersion30 = ProtocolVersion{30}
	ProtocolVersion31 = ProtocolVersion{31}
	ProtocolVersion32 = ProtocolVersion{32}

	// Oldest is the oldest protocol version we still negotiate.
	Oldest = ProtocolVersion28

	// Newest is the newest protocol version we negotiate. Peers that
	// advertise anything newer are clamped down to this.
	Newest = ProtocolVersion32

	// BinaryNegotiationIntroduced is the first version negotiated with
	// the binary handshake.
	BinaryNegotiationIntroduced = ProtocolVersion30
)

var (
	ErrUnsupportedVersion = errors.New("unsupported rsync protocol version")

	ErrEmptyVersion        = errors.New("protocol version string is empty")
	ErrInvalidVersionDigit = errors.New("protocol version contains a non-digit character")
	ErrNegativeVersion     = errors.New("protocol version cannot be negative")
	ErrVersionOverflow     = errors.New("protocol version does not fit in a byte")
	ErrVersionOutsideRange = errors.New("protocol version is outside the supported range")
)

// UnsupportedVersionError is returned when a peer advertises a protocol that
// is older than Oldest.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported rsync protocol version %d (supported: %s)",
		e.Version, SupportedProtocolsDisplay())
}

func (e *UnsupportedVersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// ParseProtocolVersionError describes why a textual protocol version was
// rejected. Unwrap yields one of the ErrEmptyVersion style sentinels.
type ParseProtocolVersionError struct {
	Input string
	Err   error
}

func (e *ParseProtocolVersionError) Error() string {
	return fmt.Sprintf("Failed to parse protocol version '%s': %s", e.Input, e.Err)
}

func (e *ParseProtocolVersionError) Unwrap() error {
	return e.Err
}

// NewProtocolVersion converts a raw byte into a supported ProtocolVersion.
// Unlike FromPeerAdvertisement it does not clamp.
func NewProtocolVersion(v uint8) (ProtocolVersion, error) {
	if v < oldestProtocol || v > newestProtocol {
		return ProtocolVersion{}, &UnsupportedVersionError{Version: uint32(v)}
	}

	return ProtocolVersion{v}, nil
}

// FromPeerAdvertisement maps the version a peer claims to speak onto the
// closest version we support. Anything newer than Newest is clamped down to
// Newest, anything older than Oldest is rejected.
func FromPeerAdvertisement(advertised uint32) (ProtocolVersion, error) {
	if advertised < uint32(oldestProtocol) {
		return ProtocolVersion{}, &UnsupportedVersionError{Version: advertised}
	}

	if advertised > uint32(newestProtocol) {
		return Newest, nil
	}

	return ProtocolVersion{uint8(advertised)}, nil
}

// ParseProtocolVersion parses a decimal protocol version such as "31" or
// " +30 ". It never panics and never truncates.
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	trimmed := strings.TrimSpace(s)

	fail := func(err error) (ProtocolVersion, error) {
		return ProtocolVersion{}, &ParseProtocolVersionError{Input: s, Err: err}
	}

	digits := trimmed
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	} else if strings.HasPrefix(digits, "-") {
		if len(digits) == 1 {
			return fail(ErrInvalidVersionDigit)
		}
		return fail(ErrNegativeVersion)
	}

	if digits == "" {
		if trimmed == "" {
			return fail(ErrEmptyVersion)
		}
		return fail(ErrInvalidVersionDigit)
	}

	var value uint32
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return fail(ErrInvalidVersionDigit)
		}

		value = value*10 + uint32(c-'0')
		if value > 255 {
			return fail(ErrVersionOverflow)
		}
	}

	v, err := NewProtocolVersion(uint8(value))
	if err != nil {
		return fail(ErrVersionOutsideRange)
	}

	return v, nil
}

// SupportedVersions returns every supported version, newest first.
func SupportedVersions() []ProtocolVersion {
	versions := make([]ProtocolVersion, 0, newestProtocol-oldestProtocol+1)
	for v := newestProtocol; v >= oldestProtocol; v-- {
		versions = append(versions, ProtocolVersion{v})
	}

	return versions
}

// SupportedProtocolsDisplay renders the supported versions the way they
// appear in error messages: "32, 31, 30, 29, 28".
func SupportedProtocolsDisplay() string {
	versions := SupportedVersions()
	parts := make([]string, len(versions))

	for i, v := range versions {
		parts[i] = v.String()
	}

	return strings.Join(parts, ", ")
}

// IsSupportedProtocol reports whether v is a version we can negotiate.
func IsSupportedProtocol(v uint8) bool {
	return v >= oldestProtocol && v <= newestProtocol
}

// MinVersion returns the older of a and b.
func MinVersion(a, b ProtocolVersion) ProtocolVersion {
	if a.v <= b.v {
		return a
	}

	return b
}

func (p ProtocolVersion) Uint8() uint8 {
	return p.v
}

func (p ProtocolVersion) IsZero() bool {
	return p.v == 0
}

func (p ProtocolVersion) String() string {
	return strconv.Itoa(int(p.v))
}

// Compare returns -1, 0 or 1 depending on whether p is older than, equal to,
// or newer than other.
func (p ProtocolVersion) Compare(other ProtocolVersion) int {
	switch {
	case p.v < other.v:
		return -1
	case p.v > other.v:
		return 1
	default:
		return 0
	}
}

func (p ProtocolVersion) Less(other ProtocolVersion) bool {
	return p.v < other.v
}

// UsesBinaryNegotiation is true for protocols negotiated with raw 4 byte
// version advertisements.
func (p ProtocolVersion) UsesBinaryNegotiation() bool {
	return p.v >= binaryNegotiationFirst
}

// UsesLegacyASCIINegotiation is true for protocols negotiated with the
// @RSYNCD: text greeting.
func (p ProtocolVersion) UsesLegacyASCIINegotiation() bool {
	return !p.UsesBinaryNegotiation()
}

// SupportsCompatibilityFlags is true when the daemon sends a compatibility
// flags varint after the version exchange.
func (p ProtocolVersion) SupportsCompatibilityFlags() bool {
	return p.v >= 30
}

func (p ProtocolVersion) UsesVarintEncoding() bool {
	return p.v >= 30
}

func (p ProtocolVersion) SupportsFlistTimes() bool {
	return p.v >= 29
}

// Newer returns the next newer supported version, if any.
func (p ProtocolVersion) Newer() (ProtocolVersion, bool) {
	if p.v < oldestProtocol || p.v >= newestProtocol {
		return ProtocolVersion{}, false
	}

	return ProtocolVersion{p.v + 1}, true
}

// Older returns the next older supported version, if any.
func (p ProtocolVersion) Older() (ProtocolVersion, bool) {
	if p.v <= oldestProtocol || p.v > newestProtocol {
		return ProtocolVersion{}, false
	}

	return ProtocolVersion{p.v - 1}, true
}

// OffsetFromOldest is the distance from Oldest, 0 for Oldest itself.
func (p ProtocolVersion) OffsetFromOldest() int {
	return int(p.v) - int(oldestProtocol)
}

func (p ProtocolVersion) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return nil, fmt.Errorf("cannot marshal the zero protocol version: %w", ErrUnsupportedVersion)
	}

	return []byte(p.String()), nil
}

func (p *ProtocolVersion) UnmarshalText(text []byte) error {
	v, err := ParseProtocolVersion(string(text))
	if err != nil {
		return err
	}

	*p = v
	return nil
}
