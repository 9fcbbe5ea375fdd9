package source

import (
	"context"
	"image"
	"sync"
	"time"
)

// Push is a source that is fed from inside the process, one frame at a time
type Push struct {
	name      string
	frames    chan *Frame
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPush creates a push source that buffers up to 'buffer' frames before Put blocks
func NewPush(name string, buffer int) *Push {
	return &Push{
		name:   name,
		frames: make(chan *Frame, buffer),
		closed: make(chan struct{}),
	}
}

func (p *Push) String() string {
	return p.name
}

// Put queues a frame. It returns false if the source has been closed.
func (p *Push) Put(ctx context.Context, img image.Image, t time.Time) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.frames <- &Frame{Image: img, Time: t}:
		return true
	case <-p.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// Next returns queued frames in order. After Close, the remaining queued frames are still returned,
// followed by ErrSourceExhausted.
func (p *Push) Next(ctx context.Context) (*Frame, error) {
	select {
	case f := <-p.frames:
		return f, nil
	default:
	}
	select {
	case f := <-p.frames:
		return f, nil
	case <-p.closed:
		select {
		case f := <-p.frames:
			return f, nil
		default:
			return nil, ErrSourceExhausted
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Push) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}
