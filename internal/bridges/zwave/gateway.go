package zwave

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Gateway daemon message types. The daemon multiplexes the serial
// controller onto a socket; every message is size(2) + type(2) + payload,
// where size covers type + payload but not itself.
const (
	msgOpenSession uint16 = 0x0001
	msgNodeFrame   uint16 = 0x0002
)

// Default timeouts and intervals for gateway communication.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the timeout for individual read operations.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// readBufferSize is the size of the read buffer for incoming messages.
	readBufferSize = 256

	// callbackQueueSize is the buffer size for the frame callback queue.
	callbackQueueSize = 100

	// callbackWorkerCount is the number of concurrent callback workers.
	callbackWorkerCount = 4
)

// NodeFrame is one application frame tagged with the mesh node it belongs
// to. The gateway daemon handles routing, encryption, and retransmission;
// what crosses the socket is the bare command-class payload.
type NodeFrame struct {
	NodeID byte
	Data   Frame
}

// EncodeGatewayMessage wraps a payload in the daemon's socket framing.
func EncodeGatewayMessage(msgType uint16, payload []byte) []byte {
	size := 2 + len(payload)
	msg := make([]byte, 2+size)
	binary.BigEndian.PutUint16(msg[0:2], uint16(size))
	binary.BigEndian.PutUint16(msg[2:4], msgType)
	copy(msg[4:], payload)
	return msg
}

// ParseGatewayMessage splits a complete socket message into type and payload.
//
// Returns:
//   - uint16: Message type
//   - []byte: Payload (may be empty)
//   - error: ErrInvalidFrame if the message is too short or the declared
//     size disagrees with the actual length
func ParseGatewayMessage(msg []byte) (uint16, []byte, error) {
	if len(msg) < 4 {
		return 0, nil, fmt.Errorf("%w: message too short (%d bytes)", ErrInvalidFrame, len(msg))
	}
	size := binary.BigEndian.Uint16(msg[0:2])
	if int(size) != len(msg)-2 {
		return 0, nil, fmt.Errorf("%w: declared size %d, actual %d", ErrInvalidFrame, size, len(msg)-2)
	}
	return binary.BigEndian.Uint16(msg[2:4]), msg[4:], nil
}

// GatewayConfig holds gateway daemon connection configuration.
type GatewayConfig struct {
	// Connection is the gateway connection URL.
	// Supported formats:
	//   - "unix:///run/zwgd" (Unix socket)
	//   - "tcp://localhost:4711" (TCP)
	Connection string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// GatewayStats holds operational statistics.
type GatewayStats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesDropped   uint64 // Frames dropped due to full callback queue
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Successful reconnections
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool // True if currently attempting to reconnect
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector interface for testability.
// This allows mocking the gateway client in tests.
type Connector interface {
	Send(ctx context.Context, nodeID byte, frame Frame) error
	SetOnFrame(callback func(NodeFrame))
	IsConnected() bool
	Stats() GatewayStats
	HealthCheck(ctx context.Context) error
	Close() error
}

// Ensure GatewayClient implements Connector.
var _ Connector = (*GatewayClient)(nil)

// GatewayClient provides connection to the Z-Wave gateway daemon.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Frame callbacks are invoked on a bounded worker pool.
//
// Auto-Reconnection:
//   - When the connection is lost, the client automatically attempts to reconnect.
//   - Uses exponential backoff starting at ReconnectInterval (default 5s) up to maxReconnectInterval (2min).
//   - Reconnection stops only when Close() is called.
type GatewayClient struct {
	cfg  GatewayConfig
	conn net.Conn

	// Connection state
	connMu    sync.RWMutex
	connected bool

	// Reconnection state
	reconnecting   atomic.Bool  // True while reconnection is in progress
	reconnectCount atomic.Int32 // Number of consecutive reconnection attempts

	// Frame handler callback
	onFrame    func(NodeFrame)
	callbackMu sync.RWMutex

	// Callback worker pool (bounded goroutine spawning)
	callbackQueue chan NodeFrame

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	framesDropped   atomic.Uint64 // Frames dropped due to full queue
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64 // Successful reconnections
	lastActivity    atomic.Int64  // Unix timestamp
}

// Connect establishes connection to the gateway daemon.
//
// The connection URL determines the transport:
//   - "unix:///run/zwgd" → Unix socket
//   - "tcp://localhost:4711" → TCP socket
//
// After connecting, it opens a frame session and starts a goroutine to
// receive incoming node frames.
//
// Parameters:
//   - ctx: Context for cancellation (used for initial connection)
//   - cfg: Connection configuration
//
// Returns:
//   - *GatewayClient: Connected client ready for use
//   - error: If connection or handshake fails
func Connect(ctx context.Context, cfg GatewayConfig) (*GatewayClient, error) {
	// Apply defaults
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx := ctx
	if connectCtx == nil {
		connectCtx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(connectCtx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	client := &GatewayClient{
		cfg:           cfg,
		conn:          conn,
		done:          newCloseOnce(),
		callbackQueue: make(chan NodeFrame, callbackQueueSize),
	}
	client.lastActivity.Store(time.Now().Unix())

	// Open frame session (respects context deadline)
	if err := client.openSession(connectCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	// Start callback worker pool (bounded goroutine count)
	for i := 0; i < callbackWorkerCount; i++ {
		client.wg.Add(1)
		go client.callbackWorker()
	}

	// Start receive loop
	client.wg.Add(1)
	go client.receiveLoop()

	return client, nil
}

// parseConnectionURL parses a gateway connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:4711"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// openSession sends the open-session handshake to the daemon.
//
// The open-session payload is reserved(1) + subscribe_all(1) + reserved(1);
// subscribe_all=0x00 delivers frames only for nodes this client sends to.
// The daemon echoes the message type to confirm.
func (c *GatewayClient) openSession(ctx context.Context) error {
	payload := []byte{0x00, 0x00, 0x00}
	msg := EncodeGatewayMessage(msgOpenSession, payload)

	writeDeadline := time.Now().Add(defaultWriteTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(writeDeadline) {
		writeDeadline = deadline
	}

	if err := c.conn.SetWriteDeadline(writeDeadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	readDeadline := time.Now().Add(c.cfg.ReadTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(readDeadline) {
		readDeadline = deadline
	}

	if err := c.conn.SetReadDeadline(readDeadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	// Read the echo using proper message framing: 2-byte size first.
	sizeBytes := make([]byte, 2)
	if _, err := io.ReadFull(c.conn, sizeBytes); err != nil {
		return fmt.Errorf("read response size: %w", err)
	}

	msgSize := binary.BigEndian.Uint16(sizeBytes)
	if msgSize < 2 {
		return fmt.Errorf("invalid response size: %d", msgSize)
	}

	resp := make([]byte, 2+int(msgSize))
	copy(resp[:2], sizeBytes)
	if _, err := io.ReadFull(c.conn, resp[2:]); err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	msgType, _, err := ParseGatewayMessage(resp)
	if err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if msgType != msgOpenSession {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}

	return nil
}

// receiveLoop continuously reads node frames from the daemon.
// On connection loss, it automatically attempts reconnection with
// exponential backoff.
func (c *GatewayClient) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		msgType, payload, err := c.readMessage(buf)
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return // Shutdown requested, exit cleanly
				}
				if !c.reconnect() {
					return // Shutdown during reconnection, exit cleanly
				}
				continue
			}
			continue // Recoverable error, retry
		}

		// Node frame payload: node_id(1) + class(1) + command(1) minimum
		if msgType == msgNodeFrame && len(payload) >= 3 {
			c.handleNodeFrame(payload)
		}
	}
}

// readMessage reads a single daemon message from the connection.
// Returns the message type, payload, and any error.
// If the message is oversized, returns ErrProtocolDesync which is fatal.
func (c *GatewayClient) readMessage(buf []byte) (uint16, []byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		c.logError("set read deadline failed", err)
		return 0, nil, fmt.Errorf("set deadline: %w", err)
	}

	// Read message size (2 bytes)
	if _, err := io.ReadFull(c.conn, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	// Size field = type(2) + payload, NOT including the size field itself
	msgSize := binary.BigEndian.Uint16(buf[:2])
	if msgSize < 2 {
		c.errorsTotal.Add(1)
		return 0, nil, fmt.Errorf("invalid message size: %d (minimum 2 for type field)",
			msgSize)
	}

	totalLen := 2 + int(msgSize)

	// Oversized message detection - FATAL error to prevent protocol desync.
	// We cannot safely skip the message because we'd need to read and
	// discard an unknown number of bytes, risking incorrect framing.
	// Closing the connection forces a clean reconnect.
	if totalLen > len(buf) {
		c.errorsTotal.Add(1)
		c.logError("oversized message, closing connection to prevent desync",
			fmt.Errorf("size %d exceeds buffer %d", totalLen, len(buf)))
		return 0, nil, ErrProtocolDesync
	}

	if _, err := io.ReadFull(c.conn, buf[2:totalLen]); err != nil {
		return 0, nil, fmt.Errorf("read message: %w", err)
	}

	msgType, payload, err := ParseGatewayMessage(buf[:totalLen])
	if err != nil {
		c.logError("parse message failed", err)
		c.errorsTotal.Add(1)
		return 0, nil, nil // Recoverable
	}

	return msgType, payload, nil
}

// handleReadError processes a read error and returns true if the loop should stop.
func (c *GatewayClient) handleReadError(err error) bool {
	if err == nil {
		return false // No error, continue
	}

	if c.isClosed() {
		return true // Clean shutdown
	}

	// Protocol desync is always fatal - stream is corrupted.
	// Must close socket immediately to stop corrupted data flow.
	if errors.Is(err, ErrProtocolDesync) {
		c.logError("protocol desync detected, closing socket", err)
		if c.conn != nil {
			c.conn.Close()
		}
		c.handleDisconnect()
		return true // Fatal, must reconnect
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false // Timeout is normal, continue
	}

	c.logError("read failed", err)
	c.errorsTotal.Add(1)
	c.handleDisconnect()
	return true // Fatal error, stop
}

// handleNodeFrame processes a received node frame.
func (c *GatewayClient) handleNodeFrame(payload []byte) {
	frame := NodeFrame{
		NodeID: payload[0],
		Data:   append(Frame(nil), payload[1:]...),
	}

	c.framesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.callbackMu.RLock()
	hasCallback := c.onFrame != nil
	c.callbackMu.RUnlock()

	if hasCallback {
		// Queue frame for bounded worker pool (non-blocking with drop on overflow)
		select {
		case c.callbackQueue <- frame:
			// Queued successfully
		default:
			// Queue full, drop frame to prevent memory exhaustion
			c.logError("callback queue full, dropping frame", nil)
			c.framesDropped.Add(1)
			c.errorsTotal.Add(1)
		}
	}
}

// callbackWorker processes frames from the callback queue.
// Runs in a bounded worker pool to prevent goroutine explosion.
func (c *GatewayClient) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainCallbackQueue()
			return
		case frame := <-c.callbackQueue:
			c.callbackMu.RLock()
			callback := c.onFrame
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("frame callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(frame)
				}()
			}
		}
	}
}

// handleDisconnect handles connection loss and triggers reconnection.
func (c *GatewayClient) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect attempts to re-establish the connection to the daemon with
// exponential backoff.
// Returns true if reconnection succeeded, false if shutdown was signalled.
func (c *GatewayClient) reconnect() bool {
	// Prevent multiple concurrent reconnection attempts
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectInterval
	if backoff == 0 {
		backoff = defaultReconnectInterval
	}

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		conn, err := c.dialWithTimeout(network, address)
		if err != nil {
			backoff = c.handleReconnectFailure("dial failed", err, backoff)
			if backoff == 0 {
				return false // Shutdown signalled
			}
			continue
		}

		if err := c.establishConnection(conn); err != nil {
			backoff = c.handleReconnectFailure("handshake failed", err, backoff)
			if backoff == 0 {
				return false // Shutdown signalled
			}
			continue
		}

		c.finalizeReconnection()
		return true
	}
}

// waitForReconnection waits for another goroutine to complete reconnection.
func (c *GatewayClient) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

// closeOldConnection closes the existing connection if any.
func (c *GatewayClient) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// dialWithTimeout attempts to dial the network address with timeout.
func (c *GatewayClient) dialWithTimeout(network, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	return conn, nil
}

// establishConnection sets up the connection and performs handshake.
func (c *GatewayClient) establishConnection(conn net.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.openSession(ctx); err != nil {
		conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return err
	}
	return nil
}

// handleReconnectFailure handles a failed reconnection attempt.
// Returns the new backoff duration, or 0 if shutdown was signalled.
func (c *GatewayClient) handleReconnectFailure(reason string, err error, backoff time.Duration) time.Duration {
	c.logError("reconnect: "+reason, err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0 // Signal shutdown
	case <-time.After(backoff):
	}

	// Exponential backoff with cap
	newBackoff := time.Duration(float64(backoff) * 1.5)
	if newBackoff > maxReconnectInterval {
		newBackoff = maxReconnectInterval
	}
	return newBackoff
}

// finalizeReconnection marks the connection as established and updates stats.
func (c *GatewayClient) finalizeReconnection() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.reconnectCount.Store(0)
	c.reconnectsTotal.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
}

// drainCallbackQueue removes and discards any remaining items from the
// callback queue. Called during shutdown to prevent goroutines from
// blocking on send.
func (c *GatewayClient) drainCallbackQueue() {
	for {
		select {
		case <-c.callbackQueue:
			// Discard item
		default:
			return // Queue is empty
		}
	}
}

// isClosed returns true if the client has been closed.
func (c *GatewayClient) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully closes the connection.
//
// It signals the receive loop to stop and closes the underlying
// network connection. Safe to call multiple times (uses sync.Once).
//
// Returns:
//   - error: nil (closing is best-effort)
func (c *GatewayClient) Close() error {
	// Signal shutdown (safe to call multiple times via sync.Once)
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	// Close connection (this will unblock any pending reads)
	if c.conn != nil {
		c.conn.Close()
	}

	c.wg.Wait()

	c.logInfo("connection closed")
	return nil
}

// Send sends an application frame to a mesh node.
//
// Parameters:
//   - ctx: Context for cancellation
//   - nodeID: Target node
//   - frame: Encoded command frame
//
// Returns:
//   - error: If sending fails or client is not connected
func (c *GatewayClient) Send(ctx context.Context, nodeID byte, frame Frame) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	payload := make([]byte, 0, 1+len(frame))
	payload = append(payload, nodeID)
	payload = append(payload, frame...)
	msg := EncodeGatewayMessage(msgNodeFrame, payload)

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}

	// Check context again before write (might have been cancelled during encoding)
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	if _, err := conn.Write(msg); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	return nil
}

// SetOnFrame sets the callback for received node frames.
//
// The callback is invoked on a bounded worker pool. Panics in the callback
// are recovered and logged.
//
// Parameters:
//   - callback: Function to call when a node frame is received
func (c *GatewayClient) SetOnFrame(callback func(NodeFrame)) {
	c.callbackMu.Lock()
	c.onFrame = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *GatewayClient) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if connected to the gateway daemon.
func (c *GatewayClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *GatewayClient) Stats() GatewayStats {
	return GatewayStats{
		FramesTx:        c.framesTx.Load(),
		FramesRx:        c.framesRx.Load(),
		FramesDropped:   c.framesDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// HealthCheck verifies the connection is alive.
//
// Note: This only checks connection state. For active verification, issue
// a version get to a known node and wait for the report.
func (c *GatewayClient) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// logInfo logs an info message if logger is set.
func (c *GatewayClient) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *GatewayClient) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
