package protocol

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// MaxLegacyLineLen bounds every line read during the legacy exchange,
	// including the terminating newline.
	MaxLegacyLineLen = 4096

	// ListRequest asks the daemon for its module listing.
	ListRequest = "#list"

	legacyErrorPrefix   = "@ERROR"
	legacyWarningPrefix = "@WARNING"
	legacyOK            = "OK"
	legacyExit          = "EXIT"
	legacyAuthRequired  = "AUTHREQD"
	legacyCapabilities  = "CAP"
)

// LegacyDaemonGreeting is a parsed "@RSYNCD: <version>[.<sub>] [digests]"
// line.
type LegacyDaemonGreeting struct {
	// Protocol is the advertised version mapped onto a supported one.
	Protocol ProtocolVersion

	// AdvertisedProtocol is the number the peer actually sent, saturated
	// at math.MaxUint32.
	AdvertisedProtocol uint32

	Subprotocol    uint32
	HasSubprotocol bool

	// DigestList is the space separated list of checksum names newer
	// daemons append to the greeting. Empty when none were sent.
	DigestList string
}

// Digests splits DigestList into its names.
func (g LegacyDaemonGreeting) Digests() []string {
	return strings.Fields(g.DigestList)
}

func (g LegacyDaemonGreeting) HasDigestList() bool {
	return g.DigestList != ""
}

// ParseLegacyDaemonGreeting parses a greeting and returns only the negotiated
// protocol.
func ParseLegacyDaemonGreeting(line string) (ProtocolVersion, error) {
	greeting, err := ParseLegacyDaemonGreetingDetails(line)
	if err != nil {
		return ProtocolVersion{}, err
	}

	return greeting.Protocol, nil
}

// ParseLegacyDaemonGreetingDetails parses every part of a greeting line. The
// trailing newline (and carriage return) are optional.
func ParseLegacyDaemonGreetingDetails(line string) (LegacyDaemonGreeting, error) {
	malformed := func() (LegacyDaemonGreeting, error) {
		return LegacyDaemonGreeting{}, &MalformedGreetingError{Line: line}
	}

	if !utf8.ValidString(line) {
		return malformed()
	}

	trimmed := strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(trimmed, LegacyDaemonPrefix) {
		return malformed()
	}

	rest := strings.TrimLeft(trimmed[LegacyDaemonPrefixLen:], " \t")

	advertised, n := parseSaturatingDigits(rest)
	if n == 0 {
		return malformed()
	}
	rest = rest[n:]

	greeting := LegacyDaemonGreeting{AdvertisedProtocol: advertised}

	if strings.HasPrefix(rest, ".") {
		sub, n := parseSaturatingDigits(rest[1:])
		if n == 0 {
			return malformed()
		}

		greeting.Subprotocol = sub
		greeting.HasSubprotocol = true
		rest = rest[1+n:]
	}

	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return malformed()
	}

	greeting.DigestList = strings.Join(strings.Fields(rest), " ")

	protocol, err := FromPeerAdvertisement(advertised)
	if err != nil {
		return LegacyDaemonGreeting{}, err
	}
	greeting.Protocol = protocol

	return greeting, nil
}

// parseSaturatingDigits reads leading ASCII digits from s. Values that don't
// fit are pinned at math.MaxUint32.
func parseSaturatingDigits(s string) (uint32, int) {
	var value uint64
	n := 0

	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		if value <= math.MaxUint32 {
			value = value*10 + uint64(s[n]-'0')
		}
		n++
	}

	if value > math.MaxUint32 {
		value = math.MaxUint32
	}

	return uint32(value), n
}

// FormatLegacyDaemonGreeting renders the greeting we send, including the
// newline.
func FormatLegacyDaemonGreeting(version ProtocolVersion, digests ...string) string {
	if len(digests) == 0 {
		return fmt.Sprintf("%s %s.0\n", LegacyDaemonPrefix, version)
	}

	return fmt.Sprintf("%s %s.0 %s\n", LegacyDaemonPrefix, version, strings.Join(digests, " "))
}

// LegacyMessageKind identifies a line received during the legacy exchange.
type LegacyMessageKind uint8

const (
	// LegacyMessageText is anything that isn't a control line, such as
	// MOTD text or a module listing entry.
	LegacyMessageText LegacyMessageKind = iota
	LegacyMessageVersion
	LegacyMessageOK
	LegacyMessageExit
	LegacyMessageAuthRequired
	LegacyMessageCapabilities
	LegacyMessageError
	LegacyMessageWarning
	LegacyMessageOther
)

func (k LegacyMessageKind) String() string {
	switch k {
	case LegacyMessageText:
		return "text"
	case LegacyMessageVersion:
		return "version"
	case LegacyMessageOK:
		return "ok"
	case LegacyMessageExit:
		return "exit"
	case LegacyMessageAuthRequired:
		return "auth-required"
	case LegacyMessageCapabilities:
		return "capabilities"
	case LegacyMessageError:
		return "error"
	case LegacyMessageWarning:
		return "warning"
	default:
		return "other"
	}
}

// LegacyDaemonMessage is a classified line.
type LegacyDaemonMessage struct {
	Kind LegacyMessageKind

	// Greeting is set for LegacyMessageVersion.
	Greeting LegacyDaemonGreeting

	// Text holds the payload: the challenge for AUTHREQD, the capability
	// list for CAP, the message for @ERROR and @WARNING, the line itself
	// for text.
	Text string
}

// ParseLegacyDaemonMessage classifies a single line, with or without its
// newline.
func ParseLegacyDaemonMessage(line string) (LegacyDaemonMessage, error) {
	trimmed := strings.TrimRight(line, "\r\n")

	if msg, ok := ParseLegacyErrorMessage(trimmed); ok {
		return LegacyDaemonMessage{Kind: LegacyMessageError, Text: msg}, nil
	}

	if msg, ok := ParseLegacyWarningMessage(trimmed); ok {
		return LegacyDaemonMessage{Kind: LegacyMessageWarning, Text: msg}, nil
	}

	if !strings.HasPrefix(trimmed, LegacyDaemonPrefix) {
		return LegacyDaemonMessage{Kind: LegacyMessageText, Text: trimmed}, nil
	}

	body := strings.TrimSpace(trimmed[LegacyDaemonPrefixLen:])
	keyword, arg := body, ""
	if i := strings.IndexAny(body, " \t"); i >= 0 {
		keyword, arg = body[:i], strings.TrimSpace(body[i+1:])
	}

	switch {
	case keyword == legacyOK && arg == "":
		return LegacyDaemonMessage{Kind: LegacyMessageOK}, nil

	case keyword == legacyExit && arg == "":
		return LegacyDaemonMessage{Kind: LegacyMessageExit}, nil

	case keyword == legacyAuthRequired:
		return LegacyDaemonMessage{Kind: LegacyMessageAuthRequired, Text: arg}, nil

	case keyword == legacyCapabilities:
		return LegacyDaemonMessage{Kind: LegacyMessageCapabilities, Text: arg}, nil

	case body != "" && body[0] >= '0' && body[0] <= '9':
		greeting, err := ParseLegacyDaemonGreetingDetails(trimmed)
		if err != nil {
			return LegacyDaemonMessage{}, err
		}

		return LegacyDaemonMessage{Kind: LegacyMessageVersion, Greeting: greeting}, nil

	default:
		return LegacyDaemonMessage{Kind: LegacyMessageOther, Text: body}, nil
	}
}

// ParseLegacyErrorMessage extracts the text of an "@ERROR: ..." line.
func ParseLegacyErrorMessage(line string) (string, bool) {
	return parsePrefixedMessage(line, legacyErrorPrefix)
}

// ParseLegacyWarningMessage extracts the text of an "@WARNING: ..." line.
func ParseLegacyWarningMessage(line string) (string, bool) {
	return parsePrefixedMessage(line, legacyWarningPrefix)
}

func parsePrefixedMessage(line, prefix string) (string, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(trimmed, prefix) {
		return "", false
	}

	rest := trimmed[len(prefix):]
	switch {
	case rest == "":
	case rest[0] == ':':
		rest = rest[1:]
	case rest[0] == ' ' || rest[0] == '\t':
	default:
		// "@ERRORS" is not an error line.
		return "", false
	}

	return strings.TrimSpace(rest), true
}

// RemoveTrailingNewline strips a trailing "\n" and any "\r" before it.
func RemoveTrailingNewline(line []byte) []byte {
	if l := len(line); l > 0 && line[l-1] == '\n' {
		line = line[:l-1]
	}

	if l := len(line); l > 0 && line[l-1] == '\r' {
		line = line[:l-1]
	}

	return line
}

// ParseModuleListing splits a #list entry into the module name and comment.
func ParseModuleListing(line string) (name, comment string) {
	line = strings.TrimRight(line, "\r\n")

	if i := strings.IndexByte(line, '\t'); i >= 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
	}

	return strings.TrimSpace(line), ""
}
