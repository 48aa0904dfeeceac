package transport

import (
	"context"
)

// Middleware represents a transport middleware that can wrap a transport
// to add behaviour such as logging, metrics or tracing.
type Middleware interface {
	// Wrap wraps the given transport with middleware functionality
	Wrap(transport Transport) Transport
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(Transport) Transport

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(t Transport) Transport {
	return f(t)
}

// ChainMiddleware chains multiple middleware together
func ChainMiddleware(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(transport Transport) Transport {
		// Apply middleware in reverse order so the first middleware is the outermost
		for i := len(middleware) - 1; i >= 0; i-- {
			transport = middleware[i].Wrap(transport)
		}
		return transport
	})
}

// Passthrough delegates every call to Next. Middleware embed it and
// override only the calls they decorate.
type Passthrough struct {
	Next Transport
}

// Connect delegates to the wrapped transport
func (p *Passthrough) Connect(ctx context.Context) error {
	return p.Next.Connect(ctx)
}

// Send delegates to the wrapped transport
func (p *Passthrough) Send(ctx context.Context, msg interface{}) error {
	return p.Next.Send(ctx, msg)
}

// Receive delegates to the wrapped transport
func (p *Passthrough) Receive(ctx context.Context) ([]byte, error) {
	return p.Next.Receive(ctx)
}

// Close delegates to the wrapped transport
func (p *Passthrough) Close() error {
	return p.Next.Close()
}
