package transport

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// readPump owns the read side of a channel. It moves frames from read into a
// buffered queue until read fails or stop is closed, so a caller giving up on
// Receive never leaves a half-read frame behind.
type readPump struct {
	frames chan []byte
	done   chan struct{} // closed once the pump has stopped reading

	mu  sync.Mutex
	err error

	group *errgroup.Group
}

// startPump runs read in one goroutine and a watcher in another. The watcher
// calls unblock when stop closes so a read blocked on the channel returns.
func startPump(queueSize int, read func() ([]byte, error), stop <-chan struct{}, unblock func()) *readPump {
	p := &readPump{
		frames: make(chan []byte, queueSize),
		done:   make(chan struct{}),
		group:  &errgroup.Group{},
	}

	p.group.Go(func() error {
		defer close(p.done)
		for {
			frame, err := read()
			if err != nil {
				p.setErr(err)
				return err
			}
			select {
			case p.frames <- frame:
			case <-stop:
				return nil
			}
		}
	})

	p.group.Go(func() error {
		select {
		case <-stop:
			unblock()
		case <-p.done:
		}
		return nil
	})

	return p
}

func (p *readPump) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Err returns the error that stopped the pump
func (p *readPump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// next returns a frame already queued, if any
func (p *readPump) next() ([]byte, bool) {
	select {
	case frame := <-p.frames:
		return frame, true
	default:
		return nil, false
	}
}

// Wait blocks until both pump goroutines have returned
func (p *readPump) Wait() error {
	return p.group.Wait()
}
