package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/logs"
)

var ErrSourceExhausted = errors.New("Video source exhausted")
var ErrSourceUnavailable = errors.New("Video source unavailable")

// Frame is one image from a video source
type Frame struct {
	Image image.Image
	Time  time.Time // Capture time. Strictly increasing within a source.
}

// Source produces frames.
// A finite source returns ErrSourceExhausted after its last frame.
// A source that can't be read returns an error that wraps ErrSourceUnavailable.
type Source interface {
	// Next blocks until the next frame is available
	Next(ctx context.Context) (*Frame, error)
	Close()
	String() string
}

// Open creates the source described by cfg.
// width, height is the frame size that synthetic sources render at, and fps is the nominal frame
// rate of sources that don't carry their own timestamps.
func Open(log logs.Log, cfg *config.SourceConfig, width, height int, fps float64) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = 15
	}
	var src Source
	var err error
	switch cfg.Kind {
	case config.SourceDemo:
		src = NewDemoSource(width, height, fps)
	case config.SourceImages:
		src, err = NewImageDir(cfg.Path, fps)
	case config.SourceSnapshot:
		src, err = NewSnapshot(cfg.URL)
	default:
		return nil, fmt.Errorf("Unknown video source '%v'", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Live {
		src = NewLive(log, src)
	}
	return src, nil
}
