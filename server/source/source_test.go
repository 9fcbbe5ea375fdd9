package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDemoSource(t *testing.T) {
	src := NewDemoSource(320, 240, 10)
	ctx := context.Background()
	var prev time.Time
	for i := 0; i < 5; i++ {
		f, err := src.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, image.Rect(0, 0, 320, 240), f.Image.Bounds())
		if i != 0 {
			require.Equal(t, 100*time.Millisecond, f.Time.Sub(prev))
		}
		prev = f.Time
	}
	src.Close()
	_, err := src.Next(ctx)
	require.ErrorIs(t, err, ErrSourceExhausted)
}

func TestDemoScript(t *testing.T) {
	require.Len(t, DemoPeople(640, 480, 5*time.Second), 2)
	require.Len(t, DemoPeople(640, 480, 45*time.Second), 3)
	require.Len(t, DemoPeople(640, 480, 105*time.Second), 2)
	// The script repeats
	require.Equal(t, DemoPeople(640, 480, 45*time.Second), DemoPeople(640, 480, DemoScriptLength+45*time.Second))
}

func TestDemoDetector(t *testing.T) {
	det := NewDemoDetector()
	img := RenderDemoScene(640, 480, 45*time.Second)
	objects, err := det.DetectObjects(img)
	require.NoError(t, err)
	require.Len(t, objects, 4)

	persons, err := nn.DetectPersons(det, img, nn.NewDetectionParams())
	require.NoError(t, err)
	require.Len(t, persons, 3)
	require.InDelta(t, img.People[0].Center().X, persons[0].Centroid.X, 0.01)
	require.InDelta(t, img.People[0].Center().Y, persons[0].Centroid.Y, 0.01)

	// Resizing preserves the ground truth
	small := Resize(img, 320, 240)
	persons, err = nn.DetectPersons(det, small, nn.NewDetectionParams())
	require.NoError(t, err)
	require.Len(t, persons, 3)
	require.InDelta(t, img.People[0].Center().X/2, persons[0].Centroid.X, 0.01)

	_, err = det.DetectObjects(solidImage(10, 10, color.Black))
	require.Error(t, err)
}

func TestResize(t *testing.T) {
	img := solidImage(64, 48, color.White)
	require.Same(t, img, Resize(img, 64, 48).(*image.RGBA))
	require.Equal(t, image.Rect(0, 0, 32, 32), Resize(img, 32, 32).Bounds())
}

func writeImage(t *testing.T, fn string, img image.Image) {
	f, err := os.Create(fn)
	require.NoError(t, err)
	defer f.Close()
	if filepath.Ext(fn) == ".png" {
		require.NoError(t, png.Encode(f, img))
	} else {
		require.NoError(t, jpeg.Encode(f, img, nil))
	}
}

func TestImageDir(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "002.png"), solidImage(20, 10, color.White))
	writeImage(t, filepath.Join(dir, "001.jpg"), solidImage(30, 10, color.White))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))

	src, err := NewImageDir(dir, 5)
	require.NoError(t, err)
	ctx := context.Background()
	f1, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, f1.Image.Bounds().Dx())
	f2, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 20, f2.Image.Bounds().Dx())
	require.Equal(t, 200*time.Millisecond, f2.Time.Sub(f1.Time))
	_, err = src.Next(ctx)
	require.ErrorIs(t, err, ErrSourceExhausted)

	src, err = NewImageDir(dir, 5)
	require.NoError(t, err)
	src.Loop = true
	for i := 0; i < 5; i++ {
		_, err = src.Next(ctx)
		require.NoError(t, err)
	}

	_, err = NewImageDir(filepath.Join(dir, "nothing-here"), 5)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	_, err = NewImageDir(t.TempDir(), 5)
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSnapshot(t *testing.T) {
	jpg := bytes.Buffer{}
	require.NoError(t, jpeg.Encode(&jpg, solidImage(40, 30, color.White), nil))
	var failures atomic.Int32
	failures.Store(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/snapshot.jpg" && failures.Add(-1) < 0 {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(jpg.Bytes())
			return
		}
		http.Error(w, "camera busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// Two failures, then success on the third attempt
	src, _ := NewSnapshot(srv.URL + "/snapshot.jpg")
	src.Backoff = time.Millisecond
	f1, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 40, f1.Image.Bounds().Dx())
	f2, err := src.Next(context.Background())
	require.NoError(t, err)
	require.True(t, f2.Time.After(f1.Time))

	bad, _ := NewSnapshot(srv.URL + "/missing.jpg")
	bad.Backoff = time.Millisecond
	_, err = bad.Next(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestPush(t *testing.T) {
	p := NewPush("push", 2)
	ctx := context.Background()
	img := solidImage(4, 4, color.White)
	require.True(t, p.Put(ctx, img, t0()))
	require.True(t, p.Put(ctx, img, t0().Add(time.Second)))
	p.Close()
	require.False(t, p.Put(ctx, img, t0().Add(2*time.Second)))

	f, err := p.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, t0(), f.Time)
	_, err = p.Next(ctx)
	require.NoError(t, err)
	_, err = p.Next(ctx)
	require.ErrorIs(t, err, ErrSourceExhausted)

	// Context cancellation unblocks Next
	p = NewPush("push", 1)
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = p.Next(cctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func t0() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

// countingSource produces n frames as fast as it is asked, numbering them by their timestamp
type countingSource struct {
	n    int
	sent int
}

func (c *countingSource) Next(ctx context.Context) (*Frame, error) {
	if c.sent >= c.n {
		return nil, errors.New("camera unplugged")
	}
	c.sent++
	return &Frame{Image: solidImage(2, 2, color.White), Time: t0().Add(time.Duration(c.sent) * time.Millisecond)}, nil
}

func (c *countingSource) Close()         {}
func (c *countingSource) String() string { return "counting" }

func TestLiveKeepsLatest(t *testing.T) {
	live := NewLive(logs.NewTestingLog(t), &countingSource{n: 1000})
	defer live.Close()

	// Wait for the pump to finish, so that only the last frame remains
	<-live.done
	f, err := live.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, t0().Add(1000*time.Millisecond), f.Time)
	require.Equal(t, int64(999), live.Dropped())

	_, err = live.Next(context.Background())
	require.EqualError(t, err, "camera unplugged")
}

func TestOpen(t *testing.T) {
	log := logs.NewTestingLog(t)
	src, err := Open(log, &config.SourceConfig{Kind: config.SourceDemo}, 64, 48, 0)
	require.NoError(t, err)
	require.Equal(t, "demo", src.String())
	src.Close()

	src, err = Open(log, &config.SourceConfig{Kind: config.SourceDemo, Live: true}, 64, 48, 10)
	require.NoError(t, err)
	f, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 64, f.Image.Bounds().Dx())
	src.Close()

	_, err = Open(log, &config.SourceConfig{Kind: "rtsp"}, 64, 48, 10)
	require.ErrorIs(t, err, config.ErrInvalidSettings)
	_, err = Open(log, &config.SourceConfig{Kind: config.SourceImages, Path: filepath.Join(t.TempDir(), "x")}, 64, 48, 10)
	require.ErrorIs(t, err, ErrSourceUnavailable)
}
