package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma/ferry/protocol"
	"github.com/luma/ferry/transport"
)

var (
	ErrAuthRequired   = errors.New("module requires authentication")
	ErrNotLegacy      = errors.New("module requests need a legacy daemon session")
	ErrUnexpectedLine = errors.New("unexpected line from daemon")
)

// DaemonError is an @ERROR line sent by the daemon.
type DaemonError struct {
	Message string
}

func (e *DaemonError) Error() string {
	return "daemon error: " + e.Message
}

type Options struct {
	// Protocol is the newest version we offer. Defaults to protocol.Newest.
	Protocol protocol.ProtocolVersion

	// Prologue picks the handshake style. Defaults to protocol.LegacyASCII.
	Prologue protocol.NegotiationPrologue

	ByteOrder binary.ByteOrder
	Digests   []string

	Log *zap.Logger
}

func (o Options) handshake() transport.HandshakeOptions {
	return transport.HandshakeOptions{
		Role:      transport.RoleClient,
		Protocol:  o.Protocol,
		Prologue:  o.Prologue,
		ByteOrder: o.ByteOrder,
		Digests:   o.Digests,
	}
}

// ModuleEntry is one line of a #list response.
type ModuleEntry struct {
	Name    string
	Comment string
}

type Listing struct {
	MOTD    []string
	Modules []ModuleEntry
}

// Reply is what the daemon sent over a multiplexed session.
type Reply struct {
	Data     []byte
	Messages []protocol.MessageFrame

	// ExitCode is set once a MSG_ERROR_EXIT frame was seen.
	ExitCode    int32
	HasExitCode bool
}

type Conn struct {
	conn    net.Conn
	session *transport.SessionHandshake

	log *zap.Logger
}

// Dial connects to a daemon and negotiates a session.
func Dial(ctx context.Context, addr string, options Options) (*Conn, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, err := Negotiate(ctx, conn, options)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

// Negotiate runs the client side of the handshake on an open connection.
func Negotiate(ctx context.Context, conn net.Conn, options Options) (*Conn, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Conn{conn: conn, log: log.With(zap.String("remote", conn.RemoteAddr().String()))}

	err := c.withContext(ctx, func() error {
		session, err := transport.ConnectSession(conn, options.handshake())
		if err != nil {
			return err
		}

		c.session = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug("Negotiated session",
		zap.Stringer("prologue", c.session.Decision()),
		zap.Stringer("protocol", c.session.NegotiatedProtocol()),
		zap.Stringer("compat", c.session.CompatibilityFlags()))

	return c, nil
}

func (c *Conn) Session() *transport.SessionHandshake {
	return c.session
}

func (c *Conn) NegotiatedProtocol() protocol.ProtocolVersion {
	return c.session.NegotiatedProtocol()
}

// ListModules asks the daemon for its MOTD and listable modules. The
// connection is finished afterwards.
func (c *Conn) ListModules(ctx context.Context) (*Listing, error) {
	if c.session.Decision() != protocol.LegacyASCII {
		return nil, ErrNotLegacy
	}

	listing := &Listing{MOTD: []string{}, Modules: []ModuleEntry{}}

	err := c.withContext(ctx, func() error {
		stream := c.session.Stream()

		if err := protocol.WriteLegacyLine(stream, protocol.ListRequest); err != nil {
			return err
		}

		for {
			msg, err := c.readMessage(stream)
			if err != nil {
				return err
			}

			switch msg.Kind {
			case protocol.LegacyMessageExit:
				return nil

			case protocol.LegacyMessageError:
				return &DaemonError{Message: msg.Text}

			case protocol.LegacyMessageWarning:
				c.log.Warn("Daemon warning", zap.String("message", msg.Text))

			case protocol.LegacyMessageText:
				// Module entries are tab separated, everything else is
				// the MOTD.
				if strings.Contains(msg.Text, "\t") {
					name, comment := protocol.ParseModuleListing(msg.Text)
					listing.Modules = append(listing.Modules, ModuleEntry{Name: name, Comment: comment})
				} else {
					listing.MOTD = append(listing.MOTD, msg.Text)
				}

			default:
				return fmt.Errorf("%w: %s", ErrUnexpectedLine, msg.Kind)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return listing, nil
}

// OpenModule requests a module. On success the session is ready for the
// transfer; a refusal is returned as a *DaemonError.
func (c *Conn) OpenModule(ctx context.Context, name string) (transport.Session, error) {
	if c.session.Decision() != protocol.LegacyASCII {
		return nil, ErrNotLegacy
	}

	err := c.withContext(ctx, func() error {
		stream := c.session.Stream()

		if err := protocol.WriteLegacyLine(stream, name); err != nil {
			return err
		}

		for {
			msg, err := c.readMessage(stream)
			if err != nil {
				return err
			}

			switch msg.Kind {
			case protocol.LegacyMessageOK:
				return nil

			case protocol.LegacyMessageError:
				return &DaemonError{Message: msg.Text}

			case protocol.LegacyMessageAuthRequired:
				return fmt.Errorf("%w: %s", ErrAuthRequired, name)

			case protocol.LegacyMessageWarning:
				c.log.Warn("Daemon warning", zap.String("message", msg.Text))

			case protocol.LegacyMessageText:
				c.log.Info("Daemon message", zap.String("message", msg.Text))

			default:
				return fmt.Errorf("%w: %s", ErrUnexpectedLine, msg.Kind)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return c.session, nil
}

// ReadReply reads multiplexed frames until the daemon closes the
// connection. Log frames are passed to the logger as well as returned.
func (c *Conn) ReadReply(ctx context.Context) (*Reply, error) {
	reply := &Reply{}

	err := c.withContext(ctx, func() error {
		reader := protocol.NewMultiplexReader(c.session, func(frame protocol.MessageFrame) error {
			reply.Messages = append(reply.Messages, frame)

			if frame.Code == protocol.MsgErrorExit {
				code, err := protocol.DecodeExitCode(frame.Payload)
				if err != nil {
					return err
				}

				reply.ExitCode, reply.HasExitCode = code, true
				return nil
			}

			c.logFrame(frame)
			return nil
		})

		data, err := ioutil.ReadAll(reader)
		reply.Data = data

		return err
	})
	if err != nil {
		return nil, err
	}

	return reply, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) readMessage(stream *transport.NegotiatedStream) (protocol.LegacyDaemonMessage, error) {
	line, err := stream.ReadLine(protocol.MaxLegacyLineLen)
	if err != nil {
		return protocol.LegacyDaemonMessage{}, err
	}

	return protocol.ParseLegacyDaemonMessage(line)
}

func (c *Conn) logFrame(frame protocol.MessageFrame) {
	level, err := frame.Code.AsLogCode()
	if err != nil {
		c.log.Debug("Ignoring daemon message", zap.Stringer("code", frame.Code))
		return
	}

	fields := []zap.Field{zap.Stringer("code", level), zap.String("message", frame.Text())}

	switch level {
	case protocol.LogInfo, protocol.LogLog, protocol.LogClient:
		c.log.Info("Daemon log", fields...)
	case protocol.LogWarning:
		c.log.Warn("Daemon log", fields...)
	default:
		c.log.Error("Daemon log", fields...)
	}
}

// withContext runs fn with the connection's deadline tied to ctx. The
// deadline is always cleared again before returning.
func (c *Conn) withContext(ctx context.Context, fn func() error) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		select {
		case <-ctx.Done():
			// Unblock whatever fn is waiting on.
			c.conn.SetDeadline(time.Now())
		case <-done:
		}
	}()

	err := fn()

	close(done)
	<-stopped

	if resetErr := c.conn.SetDeadline(time.Time{}); resetErr != nil && err == nil {
		err = resetErr
	}

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}

	return err
}
