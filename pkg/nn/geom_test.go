package nn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPointDistance(t *testing.T) {
	require.Equal(t, float32(5), Point{0, 0}.Distance(Point{3, 4}))
	require.Equal(t, float32(0), Point{7, 7}.Distance(Point{7, 7}))
}

func TestRectCenter(t *testing.T) {
	r := RectFromCorners(10, 20, 110, 220)
	require.Equal(t, Rect{X: 10, Y: 20, Width: 100, Height: 200}, r)
	require.Equal(t, Point{60, 120}, r.Center())

	// Corners given in the wrong order
	require.Equal(t, r, RectFromCorners(110, 220, 10, 20))
}

func TestRectClip(t *testing.T) {
	r := Rect{X: -10, Y: 470, Width: 50, Height: 50}
	c := r.Clip(640, 480)
	require.Equal(t, Rect{X: 0, Y: 470, Width: 40, Height: 10}, c)
}

func TestIOU(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	b := Rect{X: 5, Y: 0, Width: 10, Height: 10}
	require.InDelta(t, 50.0/150.0, a.IOU(b), 1e-6)
	require.Equal(t, float32(0), a.IOU(Rect{X: 100, Y: 100, Width: 1, Height: 1}))
	require.Equal(t, float32(0), Rect{}.IOU(Rect{}))
}

func TestPolygonContains(t *testing.T) {
	square := Polygon{{100, 100}, {200, 100}, {200, 200}, {100, 200}}

	cases := []struct {
		name   string
		pt     Point
		inside bool
	}{
		{"center", Point{150, 150}, true},
		{"left edge", Point{100, 150}, true},
		{"right edge", Point{200, 150}, true},
		{"top edge", Point{150, 100}, true},
		{"bottom edge", Point{150, 200}, true},
		{"corner", Point{200, 200}, true},
		{"outside left", Point{99, 150}, false},
		{"outside below", Point{150, 201}, false},
		{"far away", Point{1000, -5}, false},
	}
	for _, c := range cases {
		require.Equal(t, c.inside, square.Contains(c.pt), c.name)
	}
}

func TestPolygonConcave(t *testing.T) {
	// An L shape
	l := Polygon{{0, 0}, {100, 0}, {100, 50}, {50, 50}, {50, 100}, {0, 100}}
	require.True(t, l.Contains(Point{25, 75}))
	require.True(t, l.Contains(Point{75, 25}))
	require.False(t, l.Contains(Point{75, 75}))
	// On the inner notch edge
	require.True(t, l.Contains(Point{50, 75}))
}

func TestPolygonDegenerate(t *testing.T) {
	require.False(t, Polygon{}.Contains(Point{0, 0}))
	require.False(t, Polygon{{0, 0}, {10, 10}}.Contains(Point{5, 5}))
}

func TestPolygonJSON(t *testing.T) {
	var p Polygon
	b, err := json.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, "[]", string(b))

	p = Polygon{{1, 2}, {3, 4}, {5, 6}}
	b, err = json.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, `[{"x":1,"y":2},{"x":3,"y":4},{"x":5,"y":6}]`, string(b))
	require.Equal(t, Rect{X: 1, Y: 2, Width: 4, Height: 4}, p.Bounds())
}
