package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/luma/ferry/protocol"
)

var (
	ErrHandshakeVariant = errors.New("session handshake is a different variant")

	// ErrEmptySession is returned for a zero SessionHandshake or
	// SessionHandshakeParts, which hold neither variant.
	ErrEmptySession = errors.New("session handshake holds no negotiated session")
)

// VariantMismatchError is returned when narrowing a session to the style it
// was not negotiated with. Whatever was being narrowed is handed back
// untouched.
type VariantMismatchError struct {
	Expected protocol.NegotiationPrologue
	Actual   protocol.NegotiationPrologue

	// Parts is set when narrowing SessionHandshakeParts.
	Parts *SessionHandshakeParts

	// Session is set when narrowing a SessionHandshake.
	Session *SessionHandshake
}

func (e *VariantMismatchError) Error() string {
	return fmt.Sprintf("%s: want %s, have %s", ErrHandshakeVariant, e.Expected, e.Actual)
}

func (e *VariantMismatchError) Is(target error) bool {
	return target == ErrHandshakeVariant
}

// SessionHandshake is a completed handshake of either style. It can only be
// built by negotiating, or by rebuilding from SessionHandshakeParts.
type SessionHandshake struct {
	binary *BinaryHandshake
	legacy *LegacyDaemonHandshake
}

var _ Session = (*SessionHandshake)(nil)

// NegotiateSession completes whichever handshake the stream was sniffed as.
func NegotiateSession(stream *NegotiatedStream, options HandshakeOptions) (*SessionHandshake, error) {
	switch stream.Decision() {
	case protocol.Binary:
		hs, err := NegotiateBinarySession(stream, options)
		if err != nil {
			return nil, err
		}
		return &SessionHandshake{binary: hs}, nil

	case protocol.LegacyASCII:
		hs, err := NegotiateLegacySession(stream, options)
		if err != nil {
			return nil, err
		}
		return &SessionHandshake{legacy: hs}, nil

	default:
		return nil, &PrologueMismatchError{Expected: options.prologue(), Actual: stream.Decision()}
	}
}

// AcceptSession is the daemon side: sniff what the client opened with and
// answer in kind.
func AcceptSession(conn io.ReadWriter, options HandshakeOptions) (*SessionHandshake, error) {
	options.Role = RoleServer

	stream, err := SniffNegotiationStream(conn)
	if err != nil {
		return nil, err
	}

	return NegotiateSession(stream, options)
}

// ConnectSession is the client side. The daemon classifies the connection
// from our opening bytes, so we send our greeting or advertisement before
// sniffing its reply.
func ConnectSession(conn io.ReadWriter, options HandshakeOptions) (*SessionHandshake, error) {
	options.Role = RoleClient
	want := options.prologue()

	var err error
	if want == protocol.Binary {
		err = WriteBinaryAdvertisement(conn, options.protocol(), options.byteOrder())
	} else {
		err = protocol.WriteLegacyGreeting(conn, options.protocol(), options.Digests...)
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to send %s opening: %w", want, err)
	}

	stream, err := SniffNegotiationStream(conn)
	if err != nil {
		return nil, err
	}

	if err := stream.EnsureDecision(want); err != nil {
		return nil, err
	}

	return NegotiateSession(stream, options)
}

// Decision reports NeedMoreData for a zero SessionHandshake.
func (h *SessionHandshake) Decision() protocol.NegotiationPrologue {
	switch {
	case h.binary != nil:
		return protocol.Binary
	case h.legacy != nil:
		return protocol.LegacyASCII
	default:
		return protocol.NeedMoreData
	}
}

func (h *SessionHandshake) NegotiatedProtocol() protocol.ProtocolVersion {
	switch {
	case h.binary != nil:
		return h.binary.NegotiatedProtocol()
	case h.legacy != nil:
		return h.legacy.NegotiatedProtocol()
	default:
		return protocol.ProtocolVersion{}
	}
}

func (h *SessionHandshake) RemoteProtocol() protocol.ProtocolVersion {
	switch {
	case h.binary != nil:
		return h.binary.RemoteProtocol()
	case h.legacy != nil:
		return h.legacy.RemoteProtocol()
	default:
		return protocol.ProtocolVersion{}
	}
}

func (h *SessionHandshake) RemoteAdvertisedProtocol() uint32 {
	switch {
	case h.binary != nil:
		return h.binary.RemoteAdvertisedProtocol()
	case h.legacy != nil:
		return h.legacy.RemoteAdvertisedProtocol()
	default:
		return 0
	}
}

func (h *SessionHandshake) RemoteProtocolWasClamped() bool {
	switch {
	case h.binary != nil:
		return h.binary.RemoteProtocolWasClamped()
	case h.legacy != nil:
		return h.legacy.RemoteProtocolWasClamped()
	default:
		return false
	}
}

func (h *SessionHandshake) LocalProtocolWasCapped() bool {
	switch {
	case h.binary != nil:
		return h.binary.LocalProtocolWasCapped()
	case h.legacy != nil:
		return h.legacy.LocalProtocolWasCapped()
	default:
		return false
	}
}

// ServerGreeting is only available for legacy sessions.
func (h *SessionHandshake) ServerGreeting() (protocol.LegacyDaemonGreeting, bool) {
	if h.legacy == nil {
		return protocol.LegacyDaemonGreeting{}, false
	}

	return h.legacy.ServerGreeting(), true
}

// CompatibilityFlags are only exchanged by binary sessions; legacy sessions
// report none.
func (h *SessionHandshake) CompatibilityFlags() protocol.CompatibilityFlags {
	if h.binary != nil {
		return h.binary.CompatibilityFlags()
	}

	return protocol.CompatNone
}

// Stream is nil for a zero SessionHandshake.
func (h *SessionHandshake) Stream() *NegotiatedStream {
	switch {
	case h.binary != nil:
		return h.binary.Stream()
	case h.legacy != nil:
		return h.legacy.Stream()
	default:
		return nil
	}
}

func (h *SessionHandshake) Read(p []byte) (int, error) {
	stream := h.Stream()
	if stream == nil {
		return 0, ErrEmptySession
	}

	return stream.Read(p)
}

func (h *SessionHandshake) Write(p []byte) (int, error) {
	stream := h.Stream()
	if stream == nil {
		return 0, ErrEmptySession
	}

	return stream.Write(p)
}

// IntoBinary narrows to the binary handshake.
func (h *SessionHandshake) IntoBinary() (*BinaryHandshake, error) {
	if h.binary == nil {
		return nil, &VariantMismatchError{Expected: protocol.Binary, Actual: h.Decision(), Session: h}
	}

	return h.binary, nil
}

// IntoLegacy narrows to the legacy handshake.
func (h *SessionHandshake) IntoLegacy() (*LegacyDaemonHandshake, error) {
	if h.legacy == nil {
		return nil, &VariantMismatchError{Expected: protocol.LegacyASCII, Actual: h.Decision(), Session: h}
	}

	return h.legacy, nil
}

// IntoStreamParts takes the session apart so it can be handed to another
// goroutine. The handshake must not be used afterwards.
func (h *SessionHandshake) IntoStreamParts() SessionHandshakeParts {
	switch {
	case h.binary != nil:
		p := h.binary.IntoParts()
		return SessionHandshakeParts{binary: &p}
	case h.legacy != nil:
		p := h.legacy.IntoParts()
		return SessionHandshakeParts{legacy: &p}
	default:
		return SessionHandshakeParts{}
	}
}

// SessionHandshakeParts is a relocatable SessionHandshake. At most one of the
// variants is set and it never changes; the zero value holds neither.
type SessionHandshakeParts struct {
	binary *BinaryHandshakeParts
	legacy *LegacyDaemonHandshakeParts
}

func NewBinarySessionParts(p BinaryHandshakeParts) SessionHandshakeParts {
	return SessionHandshakeParts{binary: &p}
}

func NewLegacySessionParts(p LegacyDaemonHandshakeParts) SessionHandshakeParts {
	return SessionHandshakeParts{legacy: &p}
}

// SessionHandshakeFromParts rebuilds a live session without renegotiating.
// Zero parts return ErrEmptySession.
func SessionHandshakeFromParts(p SessionHandshakeParts) (*SessionHandshake, error) {
	switch {
	case p.binary != nil:
		return &SessionHandshake{binary: BinaryHandshakeFromParts(*p.binary)}, nil
	case p.legacy != nil:
		return &SessionHandshake{legacy: LegacyDaemonHandshakeFromParts(*p.legacy)}, nil
	default:
		return nil, ErrEmptySession
	}
}

func (p SessionHandshakeParts) IsEmpty() bool {
	return p.binary == nil && p.legacy == nil
}

// Decision reports NeedMoreData for zero parts.
func (p SessionHandshakeParts) Decision() protocol.NegotiationPrologue {
	switch {
	case p.binary != nil:
		return protocol.Binary
	case p.legacy != nil:
		return protocol.LegacyASCII
	default:
		return protocol.NeedMoreData
	}
}

func (p SessionHandshakeParts) NegotiatedProtocol() protocol.ProtocolVersion {
	switch {
	case p.binary != nil:
		return p.binary.NegotiatedProtocol
	case p.legacy != nil:
		return p.legacy.NegotiatedProtocol
	default:
		return protocol.ProtocolVersion{}
	}
}

func (p SessionHandshakeParts) RemoteAdvertisedProtocol() uint32 {
	switch {
	case p.binary != nil:
		return p.binary.RemoteAdvertised
	case p.legacy != nil:
		return p.legacy.Greeting.AdvertisedProtocol
	default:
		return 0
	}
}

func (p SessionHandshakeParts) Stream() NegotiatedStreamParts {
	switch {
	case p.binary != nil:
		return p.binary.Stream
	case p.legacy != nil:
		return p.legacy.Stream
	default:
		return NegotiatedStreamParts{}
	}
}

func (p SessionHandshakeParts) IntoBinary() (BinaryHandshakeParts, error) {
	if p.binary == nil {
		return BinaryHandshakeParts{}, &VariantMismatchError{Expected: protocol.Binary, Actual: p.Decision(), Parts: &p}
	}

	return *p.binary, nil
}

func (p SessionHandshakeParts) IntoLegacy() (LegacyDaemonHandshakeParts, error) {
	if p.legacy == nil {
		return LegacyDaemonHandshakeParts{}, &VariantMismatchError{Expected: protocol.LegacyASCII, Actual: p.Decision(), Parts: &p}
	}

	return *p.legacy, nil
}

// Clone deep copies the buffered bytes. The transport is shared between the
// copies.
func (p SessionHandshakeParts) Clone() SessionHandshakeParts {
	switch {
	case p.binary != nil:
		c := p.binary.Clone()
		return SessionHandshakeParts{binary: &c}
	case p.legacy != nil:
		c := p.legacy.Clone()
		return SessionHandshakeParts{legacy: &c}
	default:
		return SessionHandshakeParts{}
	}
}
