package transport

import (
	"encoding/binary"

	"github.com/luma/ferry/protocol"
)

// Role is the side of the connection we are negotiating as.
type Role uint8

const (
	// RoleClient speaks first and reads the daemon's reply.
	RoleClient Role = iota

	// RoleServer reads the client's opening bytes, then answers.
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}

	return "client"
}

type HandshakeOptions struct {
	Role Role

	// Protocol is the newest version we are willing to speak. The zero
	// value means protocol.Newest.
	Protocol protocol.ProtocolVersion

	// Prologue is the handshake style a client opens with. The zero value
	// (NeedMoreData) means protocol.LegacyASCII, which is what rsync
	// daemons expect over TCP. Servers ignore it.
	Prologue protocol.NegotiationPrologue

	// ByteOrder of the 4 byte binary version advertisement. Defaults to
	// big-endian.
	ByteOrder binary.ByteOrder

	// CompatibilityFlags the server sends for protocols 30 and newer.
	CompatibilityFlags protocol.CompatibilityFlags

	// Digests are appended to the legacy greeting we send.
	Digests []string
}

func (o HandshakeOptions) protocol() protocol.ProtocolVersion {
	if o.Protocol.IsZero() {
		return protocol.Newest
	}

	return o.Protocol
}

func (o HandshakeOptions) byteOrder() binary.ByteOrder {
	if o.ByteOrder == nil {
		return binary.BigEndian
	}

	return o.ByteOrder
}

func (o HandshakeOptions) prologue() protocol.NegotiationPrologue {
	if o.Prologue == protocol.Binary {
		return protocol.Binary
	}

	return protocol.LegacyASCII
}
