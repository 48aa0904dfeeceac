package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-conformance/pkg/utils"
)

// TestStdioTransportGoroutineLeak checks that Close stops the read pump
func TestStdioTransportGoroutineLeak(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t).
		SetAllowedGrowth(1).
		SetStabilizeDelay(300 * time.Millisecond)
	detector.Start()

	inReader, inWriter := io.Pipe()
	defer inWriter.Close()

	transport := newStdioForTest(t, inReader, io.Discard)
	require.NoError(t, transport.Connect(context.Background()))

	// leave a Receive blocked so Close has something to interrupt
	received := make(chan error, 1)
	go func() {
		_, err := transport.Receive(context.Background())
		received <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, transport.Close())

	select {
	case err := <-received:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Close")
	}

	detector.Check()
}

// TestWebSocketTransportGoroutineLeak checks that Close stops the read pump
// and its watcher
func TestWebSocketTransportGoroutineLeak(t *testing.T) {
	endpoint := newWebSocketServer(t, echoHandler)

	detector := utils.NewGoroutineLeakDetector(t).
		SetAllowedGrowth(3). // the test server keeps idle connection goroutines
		SetStabilizeDelay(300 * time.Millisecond)
	detector.Start()

	for i := 0; i < 5; i++ {
		transport := newWebSocketForTest(t, endpoint)
		require.NoError(t, transport.Connect(context.Background()))
		require.NoError(t, transport.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := transport.Receive(ctx)
		cancel()
		require.NoError(t, err)

		require.NoError(t, transport.Close())
	}

	detector.Check()
}
