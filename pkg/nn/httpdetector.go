package nn

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
)

// HTTPDetector sends each frame as a JPEG to an external inference service, which
// replies with a JSON array of ObjectDetection.
type HTTPDetector struct {
	URL         string
	Timeout     time.Duration
	JPEGQuality int
}

func NewHTTPDetector(url string) *HTTPDetector {
	return &HTTPDetector{
		URL:         url,
		Timeout:     5 * time.Second,
		JPEGQuality: 85,
	}
}

func (d *HTTPDetector) Close() {
}

func (d *HTTPDetector) DetectObjects(img image.Image) ([]ObjectDetection, error) {
	buf := bytes.Buffer{}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.JPEGQuality}); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", d.URL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	objects := []ObjectDetection{}
	if err := www.FetchJSON(req, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}
