package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
)

const stdioName = "stdio"

// StdioTransport carries newline-delimited JSON over a reader/writer pair,
// typically the standard streams of a server process.
type StdioTransport struct {
	config TransportConfig
	logger logging.Logger
	reader io.Reader
	writer *bufio.Writer

	mu    sync.Mutex // guards pump
	pump  *readPump
	done  chan struct{}
	stop  sync.Once
	write sync.Mutex
}

func newStdioTransport(config TransportConfig, logger logging.Logger) *StdioTransport {
	reader := config.StdioReader
	writer := config.StdioWriter

	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &StdioTransport{
		config: config,
		logger: logger.WithFields(logging.String(logging.ComponentKey, "StdioTransport")),
		reader: reader,
		writer: bufio.NewWriter(writer),
		done:   make(chan struct{}),
	}
}

// Connect starts reading lines from the reader
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.done:
		return mcperrors.TransportNotRunning(stdioName)
	default:
	}
	if t.pump != nil {
		return nil
	}

	limit := int(t.config.Connection.ReadLimit)
	initial := 64 * 1024
	if initial > limit {
		initial = limit
	}
	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, initial), limit)

	t.pump = startPump(t.config.Connection.QueueSize, func() ([]byte, error) {
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			// the scanner reuses its buffer on the next Scan
			frame := make([]byte, len(line))
			copy(frame, line)
			return frame, nil
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}, t.done, func() {
		if closer, ok := t.reader.(io.Closer); ok {
			_ = closer.Close()
		}
	})

	t.logger.Debug("Reading from stdio")
	return nil
}

// Send writes msg followed by a newline and flushes
func (t *StdioTransport) Send(ctx context.Context, msg interface{}) error {
	select {
	case <-t.done:
		return mcperrors.ConnectionLost(stdioName, "", ErrClosed)
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeFrame(msg)
	if err != nil {
		return mcperrors.MessageEncodeError(stdioName, err)
	}

	t.write.Lock()
	defer t.write.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return t.lost("write_frame", err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return t.lost("write_frame", err)
	}
	if err := t.writer.Flush(); err != nil {
		return t.lost("write_frame", err)
	}
	return nil
}

// Receive returns the next line delivered by the read pump
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	pump := t.pump
	t.mu.Unlock()
	if pump == nil {
		return nil, mcperrors.TransportNotRunning(stdioName)
	}

	return receive(ctx, pump, t.done, func(cause error) error {
		return t.lost("read_frame", cause)
	})
}

// Close stops the read pump and flushes pending output. A reader that is not
// an io.Closer cannot be interrupted; Close then waits at most CloseTimeout.
func (t *StdioTransport) Close() error {
	var flushErr error

	t.stop.Do(func() {
		close(t.done)

		t.write.Lock()
		flushErr = t.writer.Flush()
		t.write.Unlock()

		t.mu.Lock()
		pump := t.pump
		t.mu.Unlock()
		if pump != nil {
			waitPump(pump, t.config.Connection.CloseTimeout)
		}
	})

	if flushErr != nil {
		return t.lost("flush_on_close", flushErr)
	}
	return nil
}

func (t *StdioTransport) lost(operation string, cause error) error {
	return mcperrors.ConnectionLost(stdioName, "", cause).
		WithContext(&mcperrors.Context{
			Component: "StdioTransport",
			Operation: operation,
			Timestamp: time.Now(),
		})
}
