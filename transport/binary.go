package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/luma/ferry/protocol"
)

// BinaryHandshake is the outcome of a binary version exchange.
type BinaryHandshake struct {
	stream *NegotiatedStream

	remoteAdvertised uint32
	remoteProtocol   protocol.ProtocolVersion
	localProtocol    protocol.ProtocolVersion
	negotiated       protocol.ProtocolVersion
	flags            protocol.CompatibilityFlags
}

type BinaryHandshakeParts struct {
	Stream NegotiatedStreamParts

	RemoteAdvertised   uint32
	RemoteProtocol     protocol.ProtocolVersion
	LocalProtocol      protocol.ProtocolVersion
	NegotiatedProtocol protocol.ProtocolVersion
	CompatibilityFlags protocol.CompatibilityFlags
}

// WriteBinaryAdvertisement sends our protocol as a 4 byte integer.
func WriteBinaryAdvertisement(w io.Writer, version protocol.ProtocolVersion, order binary.ByteOrder) error {
	if order == nil {
		order = binary.BigEndian
	}

	var b [4]byte
	order.PutUint32(b[:], uint32(version.Uint8()))

	_, err := w.Write(b[:])
	return err
}

// ReadBinaryAdvertisement reads the peer's raw 4 byte protocol number.
func ReadBinaryAdvertisement(r io.Reader, order binary.ByteOrder) (uint32, error) {
	if order == nil {
		order = binary.BigEndian
	}

	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("Failed to read binary protocol advertisement: %w", err)
	}

	return order.Uint32(b[:]), nil
}

// NegotiateBinarySession completes a binary handshake on a sniffed stream.
//
// The remote advertisement is read first. A server then answers with its own
// advertisement; a client is expected to have sent its advertisement before
// the stream was sniffed. For protocols 30 and newer the server follows up
// with its compatibility flags, which the client reads.
func NegotiateBinarySession(stream *NegotiatedStream, options HandshakeOptions) (*BinaryHandshake, error) {
	if err := stream.EnsureDecision(protocol.Binary); err != nil {
		return nil, err
	}

	order := options.byteOrder()
	local := options.protocol()

	advertised, err := ReadBinaryAdvertisement(stream, order)
	if err != nil {
		return nil, err
	}

	remote, err := protocol.FromPeerAdvertisement(advertised)
	if err != nil {
		return nil, err
	}

	if options.Role == RoleServer {
		if err := WriteBinaryAdvertisement(stream, local, order); err != nil {
			return nil, fmt.Errorf("Failed to send binary protocol advertisement: %w", err)
		}
	}

	hs := &BinaryHandshake{
		stream:           stream,
		remoteAdvertised: advertised,
		remoteProtocol:   remote,
		localProtocol:    local,
		negotiated:       protocol.MinVersion(local, remote),
	}

	if hs.negotiated.SupportsCompatibilityFlags() {
		if options.Role == RoleServer {
			hs.flags = options.CompatibilityFlags
			if _, err := hs.flags.WriteTo(stream); err != nil {
				return nil, fmt.Errorf("Failed to send compatibility flags: %w", err)
			}
		} else {
			if hs.flags, err = protocol.ReadCompatibilityFlags(stream); err != nil {
				return nil, err
			}
		}
	}

	return hs, nil
}

func (h *BinaryHandshake) Stream() *NegotiatedStream {
	return h.stream
}

func (h *BinaryHandshake) RemoteAdvertisedProtocol() uint32 {
	return h.remoteAdvertised
}

func (h *BinaryHandshake) RemoteProtocol() protocol.ProtocolVersion {
	return h.remoteProtocol
}

func (h *BinaryHandshake) LocalProtocol() protocol.ProtocolVersion {
	return h.localProtocol
}

func (h *BinaryHandshake) NegotiatedProtocol() protocol.ProtocolVersion {
	return h.negotiated
}

func (h *BinaryHandshake) CompatibilityFlags() protocol.CompatibilityFlags {
	return h.flags
}

// RemoteProtocolWasClamped is true when the peer advertised a protocol newer
// than we support.
func (h *BinaryHandshake) RemoteProtocolWasClamped() bool {
	return h.remoteAdvertised > uint32(protocol.Newest.Uint8())
}

// LocalProtocolWasCapped is true when the peer held us below our desired
// protocol.
func (h *BinaryHandshake) LocalProtocolWasCapped() bool {
	return h.negotiated.Less(h.localProtocol)
}

func (h *BinaryHandshake) IntoParts() BinaryHandshakeParts {
	return BinaryHandshakeParts{
		Stream:             h.stream.IntoParts(),
		RemoteAdvertised:   h.remoteAdvertised,
		RemoteProtocol:     h.remoteProtocol,
		LocalProtocol:      h.localProtocol,
		NegotiatedProtocol: h.negotiated,
		CompatibilityFlags: h.flags,
	}
}

// BinaryHandshakeFromParts rebuilds a handshake without renegotiating.
func BinaryHandshakeFromParts(p BinaryHandshakeParts) *BinaryHandshake {
	return &BinaryHandshake{
		stream:           p.Stream.IntoStream(),
		remoteAdvertised: p.RemoteAdvertised,
		remoteProtocol:   p.RemoteProtocol,
		localProtocol:    p.LocalProtocol,
		negotiated:       p.NegotiatedProtocol,
		flags:            p.CompatibilityFlags,
	}
}

func (p BinaryHandshakeParts) Clone() BinaryHandshakeParts {
	c := p
	c.Stream = p.Stream.Clone()
	return c
}
