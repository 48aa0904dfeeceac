package transport

import (
	"context"
	"time"

	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
)

// Frame directions reported to a FrameRecorder.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// FrameRecorder receives one call per frame crossing the channel
type FrameRecorder interface {
	RecordMessage(ctx context.Context, direction string, bytes int)
}

// ObservabilityMiddleware logs channel lifecycle and frames and counts frames
type ObservabilityMiddleware struct {
	config   ObservabilityConfig
	endpoint string
	logger   logging.Logger
	recorder FrameRecorder
}

// NewObservabilityMiddleware creates a new observability middleware. A nil
// recorder disables frame metrics.
func NewObservabilityMiddleware(config TransportConfig, logger logging.Logger, recorder FrameRecorder) Middleware {
	if logger == nil {
		logger = logging.NewNop()
	}
	endpoint := config.Endpoint
	if config.Type == TransportTypeStdio {
		endpoint = "stdio"
	}

	return &ObservabilityMiddleware{
		config:   config.Observability,
		endpoint: endpoint,
		logger:   logger.WithFields(logging.String(logging.ComponentKey, "transport")),
		recorder: recorder,
	}
}

// Wrap implements the Middleware interface
func (om *ObservabilityMiddleware) Wrap(transport Transport) Transport {
	return &observabilityTransport{
		Passthrough: Passthrough{Next: transport},
		middleware:  om,
	}
}

type observabilityTransport struct {
	Passthrough
	middleware *ObservabilityMiddleware
}

func (ot *observabilityTransport) Connect(ctx context.Context) error {
	om := ot.middleware
	start := time.Now()

	err := ot.Passthrough.Connect(ctx)
	if om.config.EnableLogging {
		logger := om.logger.WithContext(ctx).WithFields(
			logging.String("endpoint", om.endpoint),
			logging.Duration("duration", time.Since(start)),
		)
		if err != nil {
			logger.WithError(err).Error("Connection failed")
		} else {
			logger.Info("Connection established")
		}
	}
	return err
}

// Send encodes msg once so the logged and counted bytes are the bytes written
func (ot *observabilityTransport) Send(ctx context.Context, msg interface{}) error {
	om := ot.middleware

	data, err := encodeFrame(msg)
	if err != nil {
		return ot.Passthrough.Send(ctx, msg)
	}

	if err := ot.Passthrough.Send(ctx, data); err != nil {
		if om.config.EnableLogging {
			om.logger.WithContext(ctx).WithError(err).Error("Send failed")
		}
		return err
	}

	if om.config.EnableMetrics && om.recorder != nil {
		om.recorder.RecordMessage(ctx, DirectionSent, len(data))
	}
	if om.config.EnableLogging {
		om.logFrame(ctx, "Frame sent", data)
	}
	return nil
}

func (ot *observabilityTransport) Receive(ctx context.Context) ([]byte, error) {
	om := ot.middleware

	data, err := ot.Passthrough.Receive(ctx)
	if err != nil {
		// the caller's own deadline is reported by the caller
		if om.config.EnableLogging && ctx.Err() == nil {
			om.logger.WithContext(ctx).WithError(err).Warn("Receive failed")
		}
		return nil, err
	}

	if om.config.EnableMetrics && om.recorder != nil {
		om.recorder.RecordMessage(ctx, DirectionReceived, len(data))
	}
	if om.config.EnableLogging {
		om.logFrame(ctx, "Frame received", data)
	}
	return data, nil
}

func (ot *observabilityTransport) Close() error {
	err := ot.Passthrough.Close()
	if ot.middleware.config.EnableLogging {
		ot.middleware.logger.Debug("Connection closed", logging.String("endpoint", ot.middleware.endpoint))
	}
	return err
}

func (om *ObservabilityMiddleware) logFrame(ctx context.Context, msg string, data []byte) {
	fields := []logging.Field{logging.Int("bytes", len(data))}
	if om.config.LogFrames {
		fields = append(fields, logging.String("frame", truncate(data, om.config.MaxLoggedFrame)))
	}
	om.logger.WithContext(ctx).Debug(msg, fields...)
}

func truncate(data []byte, max int) string {
	if max <= 0 || len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + "..."
}
