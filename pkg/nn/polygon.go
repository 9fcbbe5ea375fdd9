package nn

import (
	"encoding/json"

	"github.com/chewxy/math32"
)

// Points closer than this to a polygon edge are treated as lying on the edge
const polygonEdgeEpsilon = 1e-3

// Polygon is a closed ring of vertices. The last vertex connects back to the first.
type Polygon []Point

// MarshalJSON emits an empty array instead of null
func (p Polygon) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Point(p))
}

// Contains returns true if pt is inside the polygon, or lies on one of its edges.
// This is the classic even-odd ray casting test, with an explicit edge check so that
// points on the boundary don't flicker between inside and outside.
func (p Polygon) Contains(pt Point) bool {
	n := len(p)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a := p[j]
		b := p[i]
		if onSegment(a, b, pt) {
			return true
		}
		if (b.Y > pt.Y) != (a.Y > pt.Y) {
			xCross := (a.X-b.X)*(pt.Y-b.Y)/(a.Y-b.Y) + b.X
			if pt.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Bounds returns the axis aligned bounding box of the polygon
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	minX, minY := p[0].X, p[0].Y
	maxX, maxY := p[0].X, p[0].Y
	for _, v := range p[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	return RectFromCorners(minX, minY, maxX, maxY)
}

// Returns true if pt lies on the segment a-b
func onSegment(a, b, pt Point) bool {
	cross := (b.X-a.X)*(pt.Y-a.Y) - (b.Y-a.Y)*(pt.X-a.X)
	length := a.Distance(b)
	if length == 0 {
		return a.Distance(pt) <= polygonEdgeEpsilon
	}
	if math32.Abs(cross)/length > polygonEdgeEpsilon {
		return false
	}
	return pt.X >= min(a.X, b.X)-polygonEdgeEpsilon && pt.X <= max(a.X, b.X)+polygonEdgeEpsilon &&
		pt.Y >= min(a.Y, b.Y)-polygonEdgeEpsilon && pt.Y <= max(a.Y, b.Y)+polygonEdgeEpsilon
}
