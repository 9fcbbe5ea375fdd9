package nn

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"sync"
)

// VideoLabels contains labels for each video frame
type VideoLabels struct {
	Classes []string       `json:"classes"`
	Frames  []*ImageLabels `json:"frames"`
}

type ImageLabels struct {
	Frame   int               `json:"frame,omitempty"` // For video, this is the frame number
	Objects []ObjectDetection `json:"objects"`
}

// LabelledDetector replays pre-computed detections, one ImageLabels per call to DetectObjects.
// This lets us run the pipeline on a recorded clip without the model that labelled it.
type LabelledDetector struct {
	lock   sync.Mutex
	labels *VideoLabels
	byNum  map[int]*ImageLabels
	next   int
}

// Load a VideoLabels JSON file
func LoadVideoLabels(filename string) (*VideoLabels, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	labels := &VideoLabels{}
	if err := json.Unmarshal(b, labels); err != nil {
		return nil, fmt.Errorf("Error parsing labels file %v: %w", filename, err)
	}
	return labels, nil
}

func NewLabelledDetector(labels *VideoLabels) *LabelledDetector {
	d := &LabelledDetector{
		labels: labels,
		byNum:  map[int]*ImageLabels{},
	}
	for i, f := range labels.Frames {
		// Frame numbers are optional. Without them, frames are consumed in order.
		num := f.Frame
		if num == 0 {
			num = i
		}
		d.byNum[num] = f
	}
	return d
}

func (d *LabelledDetector) Close() {
}

func (d *LabelledDetector) DetectObjects(img image.Image) ([]ObjectDetection, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	frame := d.next
	d.next++
	f := d.byNum[frame]
	if f == nil {
		return nil, nil
	}
	out := make([]ObjectDetection, len(f.Objects))
	copy(out, f.Objects)
	return out, nil
}
