package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma/ferry/protocol"
	"github.com/luma/ferry/storage"
)

// serve runs a negotiated session to completion. Legacy sessions first get
// their module request answered; binary sessions go straight to the
// pipeline.
func (t *TCP) serve(ctx context.Context, session *SessionHandshake, conn net.Conn, remote string) error {
	var module *storage.Module

	if session.Decision() == protocol.LegacyASCII {
		var err error
		if module, err = t.serveModuleRequest(ctx, session.Stream(), remote); err != nil {
			return err
		}

		if module == nil {
			// Listing or refusal, nothing left to do.
			return nil
		}

		defer t.releaseModule(module.Name)
	}

	// The pipeline sets its own pace.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return err
	}

	return t.pipeline.Serve(ctx, session, module)
}

// serveModuleRequest reads the line a legacy client sends after the
// greeting and answers it. It returns the module the client may now use, or
// nil when the exchange ended here.
func (t *TCP) serveModuleRequest(ctx context.Context, stream *NegotiatedStream, remote string) (*storage.Module, error) {
	line, err := stream.ReadLine(protocol.MaxLegacyLineLen)
	if err != nil {
		return nil, fmt.Errorf("Failed to read module request: %w", err)
	}

	request := strings.TrimRight(line, "\r\n")

	switch request {
	case "":
		t.metrics.moduleRequests.WithLabelValues(outcomeMalformed).Inc()

		if err := protocol.WriteLegacyError(stream, "protocol startup error"); err != nil {
			return nil, err
		}
		return nil, protocol.WriteLegacyExit(stream)

	case protocol.ListRequest:
		t.metrics.moduleRequests.WithLabelValues(outcomeListed).Inc()
		return nil, t.writeListing(ctx, stream, remote)
	}

	module, err := t.catalog.Module(ctx, request)
	if errors.Is(err, storage.ErrModuleNotFound) {
		t.metrics.moduleRequests.WithLabelValues(outcomeUnknown).Inc()
		return nil, protocol.WriteLegacyError(stream, fmt.Sprintf("Unknown module '%s'", request))
	}

	if err != nil {
		return nil, err
	}

	permitted, err := module.Permits(remote)
	if err != nil {
		return nil, err
	}

	if !permitted {
		t.metrics.moduleRequests.WithLabelValues(outcomeDenied).Inc()
		t.log.Info("Denied module request",
			zap.String("module", module.Name),
			zap.String("remote", remote))

		return nil, protocol.WriteLegacyError(stream, fmt.Sprintf("access denied to module '%s' from %s", module.Name, remote))
	}

	// Authentication isn't part of this build, so modules that require it
	// can never be opened.
	if module.RequiresAuth() {
		t.metrics.moduleRequests.WithLabelValues(outcomeAuthRequired).Inc()
		return nil, protocol.WriteLegacyError(stream, fmt.Sprintf("auth failed on module %s", module.Name))
	}

	if !t.acquireModule(module) {
		t.metrics.moduleRequests.WithLabelValues(outcomeLimited).Inc()
		t.log.Info("Module connection limit reached",
			zap.String("module", module.Name),
			zap.Int("max", module.MaxConnections),
			zap.String("remote", remote))

		return nil, protocol.WriteLegacyError(stream, fmt.Sprintf("max connections (%d) reached -- try again later", module.MaxConnections))
	}

	if err := protocol.WriteLegacyOK(stream); err != nil {
		t.releaseModule(module.Name)
		return nil, err
	}

	t.metrics.moduleRequests.WithLabelValues(outcomeAccepted).Inc()

	return &module, nil
}

func (t *TCP) writeListing(ctx context.Context, stream *NegotiatedStream, remote string) error {
	motd, err := t.catalog.MOTD(ctx)
	if err != nil {
		return err
	}

	modules, err := t.catalog.ListableModules(ctx, remote)
	if err != nil {
		return err
	}

	lines := make([]string, 0, len(motd)+len(modules)+1)
	lines = append(lines, motd...)

	for _, module := range modules {
		lines = append(lines, protocol.FormatModuleListing(module.Name, module.Comment))
	}

	lines = append(lines, strings.TrimSuffix(string(protocol.ExitLine), "\n"))

	return protocol.WriteLegacyLines(stream, lines...)
}

// acquireModule counts a session against module, or reports false when the
// module is already at its MaxConnections.
func (t *TCP) acquireModule(module storage.Module) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if module.MaxConnections > 0 && t.moduleConns[module.Name] >= module.MaxConnections {
		return false
	}

	t.moduleConns[module.Name]++

	return true
}

func (t *TCP) releaseModule(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.moduleConns[name] <= 1 {
		delete(t.moduleConns, name)
		return
	}

	t.moduleConns[name]--
}
