package source

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/fogleman/gg"
)

// Length of the demo script, after which it repeats
const DemoScriptLength = 120 * time.Second

// COCO class of the chair in the demo scene
const demoChairClass = 56

// DemoImage is a frame of the demo scene. It carries the ground truth positions of the people in it,
// which is what DemoDetector "detects".
type DemoImage struct {
	image.Image
	People []nn.Rect
}

// DemoSource renders a synthetic scene with three people:
// one walks back and forth, one stands still the whole time, and a visitor walks in,
// stands still for a minute, and walks out.
// Frame times are synthetic, advancing by exactly 1/fps per frame, so the scene plays out
// identically no matter how fast it is consumed.
type DemoSource struct {
	width  int
	height int
	fps    float64
	start  time.Time
	frame  int64
	closed bool
}

func NewDemoSource(width, height int, fps float64) *DemoSource {
	return &DemoSource{
		width:  width,
		height: height,
		fps:    fps,
		start:  time.Now(),
	}
}

func (d *DemoSource) String() string {
	return "demo"
}

func (d *DemoSource) Close() {
	d.closed = true
}

func (d *DemoSource) Next(ctx context.Context) (*Frame, error) {
	if d.closed {
		return nil, ErrSourceExhausted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	elapsed := time.Duration(float64(d.frame) * float64(time.Second) / d.fps)
	d.frame++
	return &Frame{
		Image: RenderDemoScene(d.width, d.height, elapsed),
		Time:  d.start.Add(elapsed),
	}, nil
}

// DemoPeople returns the boxes of the people in the demo scene, at 'elapsed' into the script
func DemoPeople(width, height int, elapsed time.Duration) []nn.Rect {
	t := math.Mod(elapsed.Seconds(), DemoScriptLength.Seconds())
	w := float64(width)
	h := float64(height)
	box := func(cx, cy float64) nn.Rect {
		bw := 0.07 * w
		bh := 0.3 * h
		return nn.Rect{X: float32(cx*w - bw/2), Y: float32(cy*h - bh/2), Width: float32(bw), Height: float32(bh)}
	}

	people := []nn.Rect{}

	// Walker paces left to right and back, every 40 seconds
	phase := math.Mod(t, 40) / 20
	if phase > 1 {
		phase = 2 - phase
	}
	people = append(people, box(0.1+0.8*phase, 0.72))

	// Stander shuffles on the spot
	people = append(people, box(0.3+0.004*math.Sin(t*1.3), 0.45+0.004*math.Cos(t*0.7)))

	// Visitor
	switch {
	case t >= 20 && t < 30:
		people = append(people, box(0.98-0.26*(t-20)/10, 0.42))
	case t >= 30 && t < 90:
		people = append(people, box(0.72+0.003*math.Sin(t*2.1), 0.42))
	case t >= 90 && t < 100:
		people = append(people, box(0.72+0.26*(t-90)/10, 0.42))
	}

	return people
}

// The chair is static furniture, so that there's something in the scene that isn't a person
func demoChair(width, height int) nn.Rect {
	return nn.Rect{X: 0.55 * float32(width), Y: 0.6 * float32(height), Width: 0.08 * float32(width), Height: 0.12 * float32(height)}
}

// RenderDemoScene draws the demo scene at 'elapsed' into the script
func RenderDemoScene(width, height int, elapsed time.Duration) *DemoImage {
	dc := gg.NewContext(width, height)
	floor := gg.NewLinearGradient(0, 0, 0, float64(height))
	floor.AddColorStop(0, rgb(70, 75, 85))
	floor.AddColorStop(0.4, rgb(110, 110, 105))
	floor.AddColorStop(1, rgb(150, 145, 135))
	dc.SetFillStyle(floor)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	chair := demoChair(width, height)
	dc.SetRGB255(120, 80, 40)
	dc.DrawRectangle(float64(chair.X), float64(chair.Y), float64(chair.Width), float64(chair.Height))
	dc.Fill()

	people := DemoPeople(width, height, elapsed)
	for _, p := range people {
		x, y := float64(p.X), float64(p.Y)
		pw, ph := float64(p.Width), float64(p.Height)
		dc.SetRGB255(40, 60, 120)
		dc.DrawRoundedRectangle(x, y+ph*0.2, pw, ph*0.8, pw*0.2)
		dc.Fill()
		dc.SetRGB255(220, 180, 150)
		dc.DrawCircle(x+pw/2, y+ph*0.1, ph*0.1)
		dc.Fill()
	}

	return &DemoImage{
		Image:  dc.Image(),
		People: people,
	}
}

// DemoDetector is an nn.ObjectDetector for frames from DemoSource
type DemoDetector struct {
}

func NewDemoDetector() *DemoDetector {
	return &DemoDetector{}
}

func (d *DemoDetector) Close() {
}

func (d *DemoDetector) DetectObjects(img image.Image) ([]nn.ObjectDetection, error) {
	demo, ok := img.(*DemoImage)
	if !ok {
		return nil, errors.New("The demo detector only works on frames from the demo source")
	}
	b := demo.Bounds()
	objects := []nn.ObjectDetection{}
	for i, p := range demo.People {
		objects = append(objects, nn.ObjectDetection{
			Class:      nn.COCOPerson,
			Confidence: 0.92 - 0.05*float32(i),
			Box:        p,
		})
	}
	objects = append(objects, nn.ObjectDetection{
		Class:      demoChairClass,
		Confidence: 0.7,
		Box:        demoChair(b.Dx(), b.Dy()),
	})
	return objects, nil
}

func rgb(r, g, b uint8) color.Color {
	return color.RGBA{r, g, b, 255}
}
