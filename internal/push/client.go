package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"homeguard/internal/config"

	"github.com/gorilla/websocket"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// ErrNotConnected is returned by Emit while no backend session is open.
var ErrNotConnected = errors.New("push channel not connected")

// Client speaks Socket.IO to the backend over a WebSocket transport.
// One Serve call is one session; the supervisor started by Start restarts it.
type Client struct {
	endpoint         string
	endpointErr      error
	header           http.Header
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	spec             suture.Spec
	sink             Sink
	logger           *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	cancel   context.CancelFunc
	done     <-chan error
	stopOnce sync.Once
	closeErr error
}

// NewClient creates push client without dialing.
// Params: push config, sink for inbound events and logger.
// Returns: client ready for Start.
func NewClient(cfg config.PushConfig, sink Sink, logger *slog.Logger) *Client {
	header := http.Header{}
	for key, value := range cfg.Headers {
		header.Set(key, value)
	}
	endpoint, endpointErr := socketURL(cfg.URL, cfg.Path)
	logger = logger.With("component", "push")

	return &Client{
		endpoint:    endpoint,
		endpointErr: endpointErr,
		header:      header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutSec) * time.Second,
		},
		handshakeTimeout: time.Duration(cfg.HandshakeTimeoutSec) * time.Second,
		writeTimeout:     time.Duration(cfg.WriteTimeoutSec) * time.Second,
		spec: suture.Spec{
			EventHook:        (&sutureslog.Handler{Logger: logger}).MustHook(),
			FailureThreshold: cfg.Reconnect.FailureThreshold,
			FailureDecay:     cfg.Reconnect.FailureDecaySec,
			FailureBackoff:   time.Duration(cfg.Reconnect.BackoffMS) * time.Millisecond,
		},
		sink:   sink,
		logger: logger,
	}
}

// Start launches the session supervisor in background.
// Params: root context; cancellation stops the supervisor.
// Returns: immediately.
func (c *Client) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	supervisor := suture.New("push", c.spec)
	supervisor.Add(c)
	c.done = supervisor.ServeBackground(runCtx)
}

// String names the session service in supervisor events.
func (c *Client) String() string {
	return "push-client"
}

// Connected reports whether a backend session is open.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Emit sends one outbound event on the open session.
// Params: event name and payload.
// Returns: ErrNotConnected without session, or write error (session is then dropped).
func (c *Client) Emit(event string, payload any) error {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := c.writeFrame(conn, frame); err != nil {
		// Closing breaks the blocked reader; the supervisor then restarts the session.
		_ = conn.Close()
		return fmt.Errorf("write %s: %w", event, err)
	}
	c.logger.Debug("push event sent", "event", event)
	return nil
}

// Close disconnects from the namespace and stops the supervisor.
// Params: none.
// Returns: nil after the supervisor exits, or its failure.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn != nil {
			_ = c.writeFrame(conn, []byte{engineMessage, socketDisconnect})
		}
		if c.cancel == nil {
			return
		}
		c.cancel()
		if err := <-c.done; err != nil && !errors.Is(err, context.Canceled) {
			c.closeErr = fmt.Errorf("push supervisor: %w", err)
		}
	})
	return c.closeErr
}

// Serve runs one backend session until it fails or ctx ends.
// Params: session context owned by the supervisor.
// Returns: ctx error on shutdown, otherwise the session failure.
func (c *Client) Serve(ctx context.Context) error {
	if c.endpointErr != nil {
		c.logger.Error("push endpoint invalid", "error", c.endpointErr.Error())
		return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, c.endpointErr)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn("push connect failed", "url", c.endpoint, "error", err.Error())
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	heartbeat, err := c.handshake(conn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("push handshake failed", "url", c.endpoint, "error", err.Error())
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.logger.Info("push connected", "url", c.endpoint)
	c.sink.HandlePushConnection(true, "")

	reason := c.readLoop(conn, heartbeat)

	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Warn("push disconnected", "reason", reason)
	c.sink.HandlePushConnection(false, reason)
	return fmt.Errorf("push session ended: %s", reason)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// handshake completes the Engine.IO open and the default namespace connect.
// Params: freshly dialed connection.
// Returns: heartbeat timeout announced by the server.
func (c *Client) handshake(conn *websocket.Conn) (time.Duration, error) {
	if c.handshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read engine.io open: %w", err)
	}
	if len(frame) == 0 || frame[0] != engineOpen {
		return 0, fmt.Errorf("expected engine.io open packet, got %q", truncateFrame(frame))
	}
	var open openPacket
	if err := json.Unmarshal(frame[1:], &open); err != nil {
		return 0, fmt.Errorf("decode engine.io open: %w", err)
	}

	if err := c.writeFrame(conn, []byte{engineMessage, socketConnect}); err != nil {
		return 0, fmt.Errorf("send socket.io connect: %w", err)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read socket.io connect: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case enginePing:
			if err := c.writeFrame(conn, []byte{enginePong}); err != nil {
				return 0, fmt.Errorf("send engine.io pong: %w", err)
			}
		case engineClose:
			return 0, errors.New("closed by backend during handshake")
		case engineMessage:
			packet, err := parseSocketPacket(frame[1:])
			if err != nil {
				return 0, err
			}
			if packet.Namespace != defaultNamespace {
				continue
			}
			switch packet.Type {
			case socketConnect:
				_ = conn.SetReadDeadline(time.Time{})
				return open.heartbeatTimeout(), nil
			case socketConnectError:
				return 0, fmt.Errorf("socket.io connect rejected: %s", connectErrorMessage(packet.Data))
			}
		}
	}
}

// readLoop dispatches frames until the session fails.
// Params: connected session and heartbeat timeout.
// Returns: human-readable disconnect reason.
func (c *Client) readLoop(conn *websocket.Conn, heartbeat time.Duration) string {
	for {
		if heartbeat > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "closed by backend"
			}
			return err.Error()
		}
		if len(frame) == 0 {
			continue
		}

		switch frame[0] {
		case enginePing:
			if err := c.writeFrame(conn, []byte{enginePong}); err != nil {
				return "pong failed: " + err.Error()
			}
		case engineClose:
			return "closed by backend"
		case engineMessage:
			if reason, done := c.handleMessage(frame); done {
				return reason
			}
		case enginePong, engineNoop:
		default:
			c.logger.Debug("push engine packet ignored", "type", string(frame[0]))
		}
	}
}

// handleMessage routes one engine message packet.
// Returns: disconnect reason and true when the backend ended the namespace.
func (c *Client) handleMessage(frame []byte) (string, bool) {
	packet, err := parseSocketPacket(frame[1:])
	if err != nil {
		c.logger.Warn("push frame rejected", "error", err.Error())
		return "", false
	}
	if packet.Namespace != defaultNamespace {
		return "", false
	}

	switch packet.Type {
	case socketDisconnect:
		return "disconnected by backend", true
	case socketEvent:
		event, err := dispatchPacket(c.sink, packet)
		if err == nil {
			return "", false
		}
		if errors.Is(err, ErrUnknownEvent) {
			c.logger.Debug("push event ignored", "event", event)
			return "", false
		}
		c.logger.Warn("push frame rejected", "event", event, "error", err.Error())
	default:
		c.logger.Debug("push packet ignored", "type", string(packet.Type))
	}
	return "", false
}

func (c *Client) writeFrame(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
