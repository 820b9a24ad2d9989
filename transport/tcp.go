package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ferry/protocol"
	"github.com/luma/ferry/storage"
)

var ErrServerClosed = errors.New("transport: server closed")

// queuedSession is a negotiated session on its way from the goroutine that
// accepted it to a worker.
type queuedSession struct {
	parts  SessionHandshakeParts
	conn   net.Conn
	remote string
}

type TCP struct {
	ctx        context.Context
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int
	listeners    []*TCPListener

	catalog   *storage.Catalog
	handshake HandshakeOptions
	timeout   time.Duration
	pipeline  Pipeline

	workers  int
	sessions chan *queuedSession

	mu          sync.Mutex
	activeConns map[net.Conn]struct{}
	moduleConns map[string]int
	doneChan    chan struct{}

	metrics *metrics
	log     *zap.Logger
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		numListeners = 1
	}

	catalog := options.Catalog
	if catalog == nil {
		catalog = storage.NewCatalog(storage.NewInmemoryStore())
	}

	handshake := options.Handshake
	handshake.Role = RoleServer

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		catalog:      catalog,
		handshake:    handshake,
		timeout:      options.handshakeTimeout(),
		pipeline:     options.pipeline(),
		workers:      options.workers(),
		sessions:     make(chan *queuedSession, options.queueSize()),
		activeConns:  make(map[net.Conn]struct{}),
		moduleConns:  make(map[string]int),
		doneChan:     make(chan struct{}),
		metrics:      newMetrics(options.Registerer),
		log:          options.logger(),
	}
}

// Start binds every listener before returning, then accepts in the
// background until Close or Shutdown.
func (t *TCP) Start(parentCtx context.Context) error {
	select {
	case <-t.doneChan:
		return ErrServerClosed
	default:
	}

	ctx, cancel := context.WithCancel(parentCtx)
	t.ctx = ctx
	t.cancel = cancel

	t.log.Info("Starting tcp listeners", zap.Int("count", t.numListeners))

	addr := t.addr
	for i := 0; i < t.numListeners; i++ {
		listener, err := t.listen(addr)
		if err != nil {
			cancel()
			return multierr.Append(
				fmt.Errorf("Failed to listen on %s: %w", addr, err),
				t.closeListeners(),
			)
		}

		// With port 0 every listener after the first joins the port the
		// first one was given.
		addr = listener.Addr().String()
		t.startListener(ctx, listener)
	}

	for i := 0; i < t.workers; i++ {
		t.stopWaiter.Add(1)
		go func(worker int) {
			defer t.stopWaiter.Done()
			t.work(ctx, t.log.Named("worker").With(zap.Int("worker", worker)))
		}(i)
	}

	t.stopWaiter.Add(1)
	go func() {
		defer t.stopWaiter.Done()
		t.watchCatalog(ctx)
	}()

	return nil
}

func (t *TCP) Catalog() *storage.Catalog {
	return t.catalog
}

// Addrs returns the bound address of every listener.
func (t *TCP) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(t.listeners))
	for _, listener := range t.listeners {
		addrs = append(addrs, listener.Addr())
	}

	return addrs
}

func (t *TCP) listen(addr string) (net.Listener, error) {
	if t.reuseport {
		return reuseport.Listen("tcp", addr)
	}

	return net.Listen("tcp", addr)
}

func (t *TCP) startListener(ctx context.Context, l net.Listener) {
	listener := NewTCPListener(
		ctx,
		l,
		t.handleConn,
		t.log.Named("listener").With(zap.Int("listener", len(t.listeners))),
	)

	t.listeners = append(t.listeners, listener)

	t.stopWaiter.Add(1)
	go func() {
		defer t.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			t.log.Error("Failed to accept", zap.Error(err))
		}
	}()
}

// Close immediately closes all listeners and connections.
//
// For a graceful shutdown, use Shutdown()
func (t *TCP) Close() error {
	t.log.Info("Stopping TCP server")
	t.closeDoneChan()

	if t.cancel != nil {
		t.cancel()
	}

	err := t.closeListeners()

	t.mu.Lock()
	for conn := range t.activeConns {
		err = multierr.Append(err, ignoreClosed(conn.Close()))
		delete(t.activeConns, conn)
	}
	t.mu.Unlock()

	t.stopWaiter.Wait()
	t.log.Info("TCP server stopped")

	return err
}

// Shutdown stops accepting connections and waits for active sessions to
// finish before closing. If ctx expires first the remaining connections are
// closed and ctx's error returned.
func (t *TCP) Shutdown(ctx context.Context) error {
	t.log.Info("Shutting down TCP server")

	err := t.closeListeners()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for t.activeConnCount() > 0 {
		select {
		case <-ctx.Done():
			return multierr.Combine(err, ctx.Err(), t.Close())
		case <-ticker.C:
		}
	}

	return multierr.Append(err, t.Close())
}

func (t *TCP) closeListeners() (err error) {
	for _, listener := range t.listeners {
		err = multierr.Append(err, listener.Close())
	}

	return err
}

func (t *TCP) closeDoneChan() {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.doneChan:
		// Already closed.
	default:
		close(t.doneChan)
	}
}

// handleConn negotiates on conn and queues the result for a worker. It runs
// on its own goroutine per connection.
func (t *TCP) handleConn(ctx context.Context, conn net.Conn) {
	if !t.addConn(conn) {
		conn.Close()
		return
	}

	remote := remoteHost(conn)
	log := t.log.Named("conn").With(zap.String("remote", conn.RemoteAddr().String()))

	if err := conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		log.Warn("Failed to set handshake deadline", zap.Error(err))
	}

	stream, err := SniffNegotiationStream(conn)
	if err != nil {
		t.metrics.handshake(protocol.NeedMoreData, err)
		log.Warn("Failed to sniff negotiation prologue", zap.Error(err))
		t.dropConn(conn)
		return
	}

	session, err := NegotiateSession(stream, t.handshake)
	if err != nil {
		t.metrics.handshake(stream.Decision(), err)
		log.Warn("Handshake failed", zap.Stringer("prologue", stream.Decision()), zap.Error(err))

		// Legacy clients get told why before we hang up.
		if stream.Decision() == protocol.LegacyASCII {
			if err := protocol.WriteLegacyError(stream, "protocol startup error"); err != nil {
				log.Debug("Failed to report handshake failure", zap.Error(err))
			}
		}

		t.dropConn(conn)
		return
	}

	t.metrics.handshake(session.Decision(), nil)
	t.metrics.negotiated.WithLabelValues(session.NegotiatedProtocol().String()).Inc()

	log.Debug("Negotiated session",
		zap.Stringer("prologue", session.Decision()),
		zap.Stringer("protocol", session.NegotiatedProtocol()),
		zap.Uint32("advertised", session.RemoteAdvertisedProtocol()))

	queued := &queuedSession{
		parts:  session.IntoStreamParts(),
		conn:   conn,
		remote: remote,
	}

	t.metrics.queuedSessions.Inc()

	select {
	case t.sessions <- queued:
	case <-ctx.Done():
		t.metrics.queuedSessions.Dec()
		t.dropConn(conn)
	}
}

func (t *TCP) work(ctx context.Context, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case queued := <-t.sessions:
			t.metrics.queuedSessions.Dec()
			t.metrics.activeSessions.Inc()

			if err := t.serveQueued(ctx, queued); err != nil {
				log.Warn("Session failed",
					zap.String("remote", queued.remote),
					zap.Error(err))
			}

			t.metrics.activeSessions.Dec()
			t.dropConn(queued.conn)
		}
	}
}

// serveQueued restarts the deadline so time spent waiting in the queue
// doesn't count against the module request.
func (t *TCP) serveQueued(ctx context.Context, queued *queuedSession) error {
	session, err := SessionHandshakeFromParts(queued.parts)
	if err != nil {
		return err
	}

	if err := queued.conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return err
	}

	return t.serve(ctx, session, queued.conn, queued.remote)
}

func (t *TCP) watchCatalog(ctx context.Context) {
	updates := t.catalog.ListenToUpdates()

	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-updates:
			if !ok {
				return
			}

			if storage.IsModuleUpdate(update) {
				t.metrics.catalogUpdates.Inc()
				t.log.Info("Module catalog changed", zap.ByteString("key", update.Key))
			}
		}
	}
}

// addConn tracks conn, or reports false once the server is closing.
func (t *TCP) addConn(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.doneChan:
		return false
	default:
	}

	t.activeConns[conn] = struct{}{}
	return true
}

func (t *TCP) dropConn(conn net.Conn) {
	t.mu.Lock()
	delete(t.activeConns, conn)
	t.mu.Unlock()

	conn.Close()
}

func (t *TCP) activeConnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.activeConns)
}

type TCPListener struct {
	ctx      context.Context
	listener net.Listener
	handle   func(context.Context, net.Conn)

	loopWaiter sync.WaitGroup

	mu     sync.Mutex
	closed bool

	log *zap.Logger
}

func NewTCPListener(
	ctx context.Context,
	listener net.Listener,
	handle func(context.Context, net.Conn),
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:      ctx,
		listener: listener,
		handle:   handle,
		log:      log,
	}
}

func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops accepting. Connections already accepted are left alone.
func (t *TCPListener) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	return ignoreClosed(t.listener.Close())
}

// Listen accepts until the listener is closed, then waits for the
// connections it started handling to be queued or dropped.
func (t *TCPListener) Listen() error {
	go func() {
		<-t.ctx.Done()

		if err := t.Close(); err != nil {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	defer func() {
		t.log.Info("Waiting for handshakes to finish")
		t.loopWaiter.Wait()
		t.log.Info("Listener stopped")
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Temporary() {
				t.log.Warn("Temporary accept failure", zap.Error(err))
				time.Sleep(5 * time.Millisecond)
				continue
			}

			return err
		}

		t.loopWaiter.Add(1)
		go func() {
			defer t.loopWaiter.Done()
			t.handle(t.ctx, conn)
		}()
	}
}

func remoteHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}

	return host
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}
