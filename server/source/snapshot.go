package source

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
)

// Snapshot polls a camera's HTTP snapshot URL (eg /ISAPI/Streaming/channels/101/picture on HikVision).
// Each call to Next fetches a new image, and stamps it with the time of arrival.
type Snapshot struct {
	URL      string
	Timeout  time.Duration // Per request
	Attempts int           // Give up after this many consecutive failures
	Backoff  time.Duration // Pause between attempts

	lastTime time.Time
}

func NewSnapshot(url string) (*Snapshot, error) {
	return &Snapshot{
		URL:      url,
		Timeout:  5 * time.Second,
		Attempts: 3,
		Backoff:  500 * time.Millisecond,
	}, nil
}

func (s *Snapshot) String() string {
	return "snapshot:" + s.URL
}

func (s *Snapshot) Close() {
}

func (s *Snapshot) Next(ctx context.Context) (*Frame, error) {
	var lastErr error
	for attempt := 0; attempt < s.Attempts; attempt++ {
		if attempt != 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.Backoff):
			}
		}
		img, err := s.fetch(ctx)
		if err == nil {
			now := time.Now()
			if !now.After(s.lastTime) {
				now = s.lastTime.Add(time.Millisecond)
			}
			s.lastTime = now
			return &Frame{Image: img, Time: now}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, lastErr)
}

func (s *Snapshot) fetch(ctx context.Context) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := www.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode snapshot: %w", err)
	}
	return img, nil
}
