package source

import (
	"image"

	"github.com/nfnt/resize"
)

// Resize scales img to exactly width x height. If img is already that size, it is returned as-is.
// A nil or empty image is returned unchanged, and left for the detector to reject.
func Resize(img image.Image, width, height int) image.Image {
	if img == nil || img.Bounds().Empty() {
		return img
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	scaled := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	if demo, ok := img.(*DemoImage); ok {
		sx := float32(width) / float32(b.Dx())
		sy := float32(height) / float32(b.Dy())
		out := &DemoImage{Image: scaled}
		for _, p := range demo.People {
			out.People = append(out.People, p.Scale(sx, sy))
		}
		return out
	}
	return scaled
}
