package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
)

const websocketName = "websocket"

// WebSocketTransport carries one JSON-RPC message per websocket text frame.
type WebSocketTransport struct {
	config TransportConfig
	logger logging.Logger
	dialer *websocket.Dialer

	mu    sync.Mutex // guards conn and pump
	conn  *websocket.Conn
	pump  *readPump
	done  chan struct{}
	stop  sync.Once
	write sync.Mutex // serialises frame writes
}

func newWebSocketTransport(config TransportConfig, logger logging.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		config: config,
		logger: logger.WithFields(logging.String(logging.ComponentKey, "WebSocketTransport")),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.Connection.DialTimeout,
		},
		done: make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read pump
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.done:
		return mcperrors.TransportNotRunning(websocketName)
	default:
	}
	if t.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.config.Connection.DialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(dialCtx, t.config.Endpoint, t.config.Header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return mcperrors.ConnectionFailed(websocketName, t.config.Endpoint, err).
			WithContext(&mcperrors.Context{
				Component: "WebSocketTransport",
				Operation: "connect",
			})
	}
	conn.SetReadLimit(t.config.Connection.ReadLimit)

	t.conn = conn
	t.pump = startPump(t.config.Connection.QueueSize, func() ([]byte, error) {
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return nil, err
			}
			if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
				return data, nil
			}
		}
	}, t.done, func() {
		_ = conn.Close()
	})

	t.logger.Debug("Connected", logging.String("endpoint", t.config.Endpoint))
	return nil
}

// Send writes msg as a single text frame
func (t *WebSocketTransport) Send(ctx context.Context, msg interface{}) error {
	conn, err := t.activeConn()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeFrame(msg)
	if err != nil {
		return mcperrors.MessageEncodeError(websocketName, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.config.Connection.WriteTimeout)
	}

	t.write.Lock()
	defer t.write.Unlock()

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return mcperrors.ConnectionLost(websocketName, t.config.Endpoint, err).
			WithContext(&mcperrors.Context{
				Component: "WebSocketTransport",
				Operation: "write_frame",
			})
	}
	return nil
}

// Receive returns the next frame delivered by the read pump
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	pump := t.pump
	t.mu.Unlock()
	if pump == nil {
		return nil, mcperrors.TransportNotRunning(websocketName)
	}

	return receive(ctx, pump, t.done, func(cause error) error {
		return mcperrors.ConnectionLost(websocketName, t.config.Endpoint, cause).
			WithContext(&mcperrors.Context{
				Component: "WebSocketTransport",
				Operation: "read_frame",
			})
	})
}

// Close sends a close frame, closes the connection and waits for the read
// pump to exit
func (t *WebSocketTransport) Close() error {
	t.stop.Do(func() {
		t.mu.Lock()
		conn := t.conn
		pump := t.pump
		t.mu.Unlock()

		if conn != nil {
			t.write.Lock()
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			t.write.Unlock()
		}

		close(t.done)

		if pump != nil {
			waitPump(pump, t.config.Connection.CloseTimeout)
		}
		t.logger.Debug("Closed", logging.String("endpoint", t.config.Endpoint))
	})
	return nil
}

func (t *WebSocketTransport) activeConn() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.done:
		return nil, mcperrors.ConnectionLost(websocketName, t.config.Endpoint, ErrClosed)
	default:
	}
	if t.conn == nil {
		return nil, mcperrors.TransportNotRunning(websocketName)
	}
	return t.conn, nil
}

// encodeFrame renders msg as JSON; raw bytes pass through unchanged
func encodeFrame(msg interface{}) ([]byte, error) {
	switch m := msg.(type) {
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	default:
		return json.Marshal(msg)
	}
}

// receive implements Receive on top of a read pump. Frames queued before the
// pump stopped are still delivered.
func receive(ctx context.Context, pump *readPump, done <-chan struct{}, lost func(error) error) ([]byte, error) {
	if frame, ok := pump.next(); ok {
		return frame, nil
	}

	select {
	case frame := <-pump.frames:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pump.done:
		if frame, ok := pump.next(); ok {
			return frame, nil
		}
		cause := pump.Err()
		if cause == nil {
			cause = ErrClosed
		}
		return nil, lost(cause)
	case <-done:
		return nil, lost(ErrClosed)
	}
}

// waitPump waits for the pump goroutines, giving up after timeout when the
// underlying reader cannot be interrupted
func waitPump(pump *readPump, timeout time.Duration) {
	waited := make(chan struct{})
	go func() {
		_ = pump.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(timeout):
	}
}
