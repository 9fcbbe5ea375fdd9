package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/stretchr/testify/require"
)

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func isColor(c color.Color, r, g, b uint8) bool {
	cr, cg, cb, _ := c.RGBA()
	return uint8(cr>>8) == r && uint8(cg>>8) == g && uint8(cb>>8) == b
}

func TestLabel(t *testing.T) {
	p := Person{ID: 7}
	require.Equal(t, "ID: 7 - ACTIVE", p.Label())
	p.Idle = true
	p.IdleDuration = 12400 * time.Millisecond
	require.Equal(t, "ID: 7 - IDLE 12s", p.Label())
}

func TestDraw(t *testing.T) {
	src := blank(200, 200)
	scene := &Scene{
		ROIEnabled: true,
		ROI:        nn.Polygon{{10, 10}, {190, 10}, {190, 190}, {10, 190}},
		People: []Person{
			{ID: 1, Box: nn.Rect{X: 40, Y: 40, Width: 40, Height: 100}},
			{ID: 2, Box: nn.Rect{X: 120, Y: 40, Width: 40, Height: 100}, Idle: true, Trail: []nn.Point{{130, 90}, {140, 90}}},
		},
		Stats: []string{"fps: 15.0"},
	}
	out := Draw(src, scene)
	require.Equal(t, src.Bounds(), out.Bounds())

	// The source is not modified
	require.True(t, isColor(src.At(40, 100), 0, 0, 0))

	// Active box is green, idle box is red, ROI is yellow
	require.True(t, isColor(out.At(40, 100), 0, 255, 0))
	require.True(t, isColor(out.At(120, 100), 255, 0, 0))
	require.True(t, isColor(out.At(100, 190), 255, 255, 0))

	jpg, err := EncodeJPEG(out, 80)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(jpg))
	require.NoError(t, err)
	require.Equal(t, out.Bounds(), decoded.Bounds())
}
