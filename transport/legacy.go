package transport

import (
	"fmt"

	"github.com/luma/ferry/protocol"
)

// LegacyDaemonHandshake is the outcome of an @RSYNCD: greeting exchange.
type LegacyDaemonHandshake struct {
	stream *NegotiatedStream

	greeting      protocol.LegacyDaemonGreeting
	localProtocol protocol.ProtocolVersion
	negotiated    protocol.ProtocolVersion
}

type LegacyDaemonHandshakeParts struct {
	Stream NegotiatedStreamParts

	Greeting           protocol.LegacyDaemonGreeting
	LocalProtocol      protocol.ProtocolVersion
	NegotiatedProtocol protocol.ProtocolVersion
}

// NegotiateLegacySession reads the peer's greeting line from a sniffed
// stream. A server answers with its own greeting; a client is expected to
// have sent its greeting before the stream was sniffed.
func NegotiateLegacySession(stream *NegotiatedStream, options HandshakeOptions) (*LegacyDaemonHandshake, error) {
	if err := stream.EnsureDecision(protocol.LegacyASCII); err != nil {
		return nil, err
	}

	local := options.protocol()

	line, err := stream.ReadLine(protocol.MaxLegacyLineLen)
	if err != nil {
		return nil, err
	}

	greeting, err := protocol.ParseLegacyDaemonGreetingDetails(line)
	if err != nil {
		return nil, err
	}

	if options.Role == RoleServer {
		if err := protocol.WriteLegacyGreeting(stream, local, options.Digests...); err != nil {
			return nil, fmt.Errorf("Failed to send legacy greeting: %w", err)
		}
	}

	return &LegacyDaemonHandshake{
		stream:        stream,
		greeting:      greeting,
		localProtocol: local,
		negotiated:    protocol.MinVersion(local, greeting.Protocol),
	}, nil
}

func (h *LegacyDaemonHandshake) Stream() *NegotiatedStream {
	return h.stream
}

// ServerGreeting is the greeting the peer sent. On the daemon side that is
// the client's greeting line.
func (h *LegacyDaemonHandshake) ServerGreeting() protocol.LegacyDaemonGreeting {
	return h.greeting
}

func (h *LegacyDaemonHandshake) RemoteAdvertisedProtocol() uint32 {
	return h.greeting.AdvertisedProtocol
}

func (h *LegacyDaemonHandshake) RemoteProtocol() protocol.ProtocolVersion {
	return h.greeting.Protocol
}

func (h *LegacyDaemonHandshake) LocalProtocol() protocol.ProtocolVersion {
	return h.localProtocol
}

func (h *LegacyDaemonHandshake) NegotiatedProtocol() protocol.ProtocolVersion {
	return h.negotiated
}

func (h *LegacyDaemonHandshake) RemoteProtocolWasClamped() bool {
	return h.greeting.AdvertisedProtocol > uint32(protocol.Newest.Uint8())
}

func (h *LegacyDaemonHandshake) LocalProtocolWasCapped() bool {
	return h.negotiated.Less(h.localProtocol)
}

func (h *LegacyDaemonHandshake) IntoParts() LegacyDaemonHandshakeParts {
	return LegacyDaemonHandshakeParts{
		Stream:             h.stream.IntoParts(),
		Greeting:           h.greeting,
		LocalProtocol:      h.localProtocol,
		NegotiatedProtocol: h.negotiated,
	}
}

func LegacyDaemonHandshakeFromParts(p LegacyDaemonHandshakeParts) *LegacyDaemonHandshake {
	return &LegacyDaemonHandshake{
		stream:        p.Stream.IntoStream(),
		greeting:      p.Greeting,
		localProtocol: p.LocalProtocol,
		negotiated:    p.NegotiatedProtocol,
	}
}

func (p LegacyDaemonHandshakeParts) Clone() LegacyDaemonHandshakeParts {
	c := p
	c.Stream = p.Stream.Clone()
	return c
}
