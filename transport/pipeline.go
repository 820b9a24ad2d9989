package transport

import (
	"context"
	"io"

	"github.com/luma/ferry/protocol"
	"github.com/luma/ferry/storage"
)

// Session is what a negotiated connection looks like to the code that runs
// the transfer.
type Session interface {
	io.ReadWriter

	NegotiatedProtocol() protocol.ProtocolVersion
	CompatibilityFlags() protocol.CompatibilityFlags
}

// Pipeline runs a transfer over a negotiated session. module is the module
// the client asked for on a legacy session, and nil on a binary session.
type Pipeline interface {
	Serve(ctx context.Context, session Session, module *storage.Module) error
}

// PipelineFunc adapts a function to a Pipeline.
type PipelineFunc func(ctx context.Context, session Session, module *storage.Module) error

func (f PipelineFunc) Serve(ctx context.Context, session Session, module *storage.Module) error {
	return f(ctx, session, module)
}

const UnavailableMessage = "daemon file transfers are unavailable in this build"

// UnavailablePipeline tells the client, in multiplexed frames, that there is
// nothing to transfer with and ends the session with exit code 1.
type UnavailablePipeline struct{}

func (UnavailablePipeline) Serve(ctx context.Context, session Session, module *storage.Module) error {
	w := protocol.NewMultiplexWriter(session)

	if err := w.WriteError(UnavailableMessage + "\n"); err != nil {
		return err
	}

	return w.WriteErrorExit(1)
}
