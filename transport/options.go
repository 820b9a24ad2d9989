package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luma/ferry/storage"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultWorkers          = 8
	DefaultQueueSize        = 64
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on. 0 picks a free port, see TCP.Addrs().
	Port int

	// Reuseport controls setting SO_REUSEPORT. Without it only a single
	// listener is started.
	Reuseport bool

	NumListeners int

	// Catalog holds the modules and MOTD served to legacy clients.
	Catalog *storage.Catalog

	// Handshake is applied to every accepted connection. Role is forced to
	// RoleServer.
	Handshake HandshakeOptions

	// HandshakeTimeout bounds the handshake and, for legacy sessions, the
	// module request that follows it.
	HandshakeTimeout time.Duration

	// Workers serve negotiated sessions taken from a queue of QueueSize.
	Workers   int
	QueueSize int

	// Pipeline runs accepted sessions. Defaults to UnavailablePipeline.
	Pipeline Pipeline

	// Registerer receives the daemon's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	Log *zap.Logger
}

func (o Options) handshakeTimeout() time.Duration {
	if o.HandshakeTimeout <= 0 {
		return DefaultHandshakeTimeout
	}

	return o.HandshakeTimeout
}

func (o Options) workers() int {
	if o.Workers < 1 {
		return DefaultWorkers
	}

	return o.Workers
}

func (o Options) queueSize() int {
	if o.QueueSize <= 0 {
		return DefaultQueueSize
	}

	return o.QueueSize
}

func (o Options) pipeline() Pipeline {
	if o.Pipeline == nil {
		return UnavailablePipeline{}
	}

	return o.Pipeline
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}

	return o.Log
}
