// Package annotate draws tracking results on top of video frames
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/fogleman/gg"
)

// Person is one tracked person, as it should be drawn
type Person struct {
	ID           int64
	Box          nn.Rect
	Idle         bool
	IdleDuration time.Duration
	Trail        []nn.Point // Recent centroids, oldest first
}

// Scene is everything that gets drawn over a frame
type Scene struct {
	ROIEnabled bool
	ROI        nn.Polygon
	People     []Person
	Stats      []string // Lines of text in the top left corner
}

// Label is the text that is drawn above a person's box
func (p *Person) Label() string {
	if p.Idle {
		return fmt.Sprintf("ID: %v - IDLE %.0fs", p.ID, p.IdleDuration.Seconds())
	}
	return fmt.Sprintf("ID: %v - ACTIVE", p.ID)
}

// Draw returns a copy of img with the scene drawn over it
func Draw(img image.Image, scene *Scene) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(2)

	if scene.ROIEnabled && len(scene.ROI) >= 3 {
		dc.SetRGB255(255, 255, 0)
		for i, p := range scene.ROI {
			if i == 0 {
				dc.MoveTo(float64(p.X), float64(p.Y))
			} else {
				dc.LineTo(float64(p.X), float64(p.Y))
			}
		}
		dc.ClosePath()
		dc.Stroke()
	}

	for i := range scene.People {
		p := &scene.People[i]
		if len(p.Trail) >= 2 {
			dc.SetRGB255(255, 0, 255)
			for j, pt := range p.Trail {
				if j == 0 {
					dc.MoveTo(float64(pt.X), float64(pt.Y))
				} else {
					dc.LineTo(float64(pt.X), float64(pt.Y))
				}
			}
			dc.Stroke()
		}

		if p.Idle {
			dc.SetRGB255(255, 0, 0)
		} else {
			dc.SetRGB255(0, 255, 0)
		}
		dc.DrawRectangle(float64(p.Box.X), float64(p.Box.Y), float64(p.Box.Width), float64(p.Box.Height))
		dc.Stroke()
		labelY := max(float64(p.Box.Y)-4, 12)
		dc.DrawString(p.Label(), float64(p.Box.X), labelY)
	}

	if len(scene.Stats) != 0 {
		lineHeight := 15.0
		width := 0.0
		for _, s := range scene.Stats {
			w, _ := dc.MeasureString(s)
			width = max(width, w)
		}
		dc.SetRGBA(0, 0, 0, 0.6)
		dc.DrawRectangle(4, 4, width+8, lineHeight*float64(len(scene.Stats))+6)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		for i, s := range scene.Stats {
			dc.DrawString(s, 8, 4+lineHeight*float64(i+1))
		}
	}

	return dc.Image()
}

// EncodeJPEG compresses img to a JPEG
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
