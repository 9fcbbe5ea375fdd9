package nn

import (
	"github.com/chewxy/math32"
)

// Point is a position in frame pixel space
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt(p.DistanceSquared(b))
}

func (p Point) DistanceSquared(b Point) float32 {
	dx := p.X - b.X
	dy := p.Y - b.Y
	return dx*dx + dy*dy
}

// Rect is an axis aligned box in frame pixel space
type Rect struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// Create a Rect from two corners (x1,y1) top-left and (x2,y2) bottom-right
func RectFromCorners(x1, y1, x2, y2 float32) Rect {
	return Rect{
		X:      min(x1, x2),
		Y:      min(y1, y2),
		Width:  math32.Abs(x2 - x1),
		Height: math32.Abs(y2 - y1),
	}
}

func (r Rect) X2() float32 {
	return r.X + r.Width
}

func (r Rect) Y2() float32 {
	return r.Y + r.Height
}

func (r Rect) Area() float32 {
	return r.Width * r.Height
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X2(), b.X2())
	y2 := min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// Intersection over Union
func (r Rect) IOU(b Rect) float32 {
	union := r.Area() + b.Area() - r.Intersection(b).Area()
	if union <= 0 {
		return 0
	}
	return r.Intersection(b).Area() / union
}

// Center is the centroid of the box
func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

// Clip the rectangle so that it lies inside a frame of the given size
func (r Rect) Clip(frameWidth, frameHeight int) Rect {
	fw := float32(frameWidth)
	fh := float32(frameHeight)
	x1 := min(max(r.X, 0), fw)
	y1 := min(max(r.Y, 0), fh)
	x2 := min(max(r.X2(), 0), fw)
	y2 := min(max(r.Y2(), 0), fh)
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Scale the rectangle by independent X and Y factors
func (r Rect) Scale(sx, sy float32) Rect {
	return Rect{
		X:      r.X * sx,
		Y:      r.Y * sy,
		Width:  r.Width * sx,
		Height: r.Height * sy,
	}
}
