package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cyclopcam/logs"
)

// Live reads frames from its underlying source on a background goroutine, and keeps only the most
// recent one. If the consumer is slower than the source, stale frames are dropped.
type Live struct {
	Log logs.Log

	src     Source
	slot    chan *Frame // Capacity 1. Only the pump goroutine sends.
	done    chan struct{}
	cancel  context.CancelFunc
	errLock sync.Mutex
	err     error
	dropped atomic.Int64
	closed  sync.Once
}

func NewLive(log logs.Log, src Source) *Live {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Live{
		Log:    log,
		src:    src,
		slot:   make(chan *Frame, 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go l.pump(ctx)
	return l
}

func (l *Live) String() string {
	return l.src.String()
}

func (l *Live) pump(ctx context.Context) {
	defer close(l.done)
	for {
		frame, err := l.src.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				err = ErrSourceExhausted
			}
			l.errLock.Lock()
			l.err = err
			l.errLock.Unlock()
			return
		}
		select {
		case l.slot <- frame:
		default:
			select {
			case <-l.slot:
				l.dropped.Add(1)
			default:
			}
			l.slot <- frame
		}
	}
}

// Next returns the most recent frame that has not yet been returned.
// Once the underlying source fails, any frame still waiting is returned first, and then the error.
func (l *Live) Next(ctx context.Context) (*Frame, error) {
	select {
	case frame := <-l.slot:
		return frame, nil
	case <-l.done:
		select {
		case frame := <-l.slot:
			return frame, nil
		default:
		}
		l.errLock.Lock()
		defer l.errLock.Unlock()
		return nil, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dropped is the number of frames that were replaced by a newer frame before they were consumed
func (l *Live) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Live) Close() {
	l.closed.Do(func() {
		l.cancel()
		<-l.done
		l.src.Close()
	})
}
