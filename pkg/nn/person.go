package nn

import (
	"errors"
	"fmt"
	"image"
)

// ErrDetectionFailure is returned when the model could not process a frame.
// It only ever applies to a single frame.
var ErrDetectionFailure = errors.New("Detection failure")

// Detection is a single person found in a frame, after filtering
type Detection struct {
	Box        Rect    `json:"box"`
	Centroid   Point   `json:"centroid"`
	Confidence float32 `json:"confidence"`
	Class      int     `json:"class"`
}

// DetectPersons runs the detector on img, and returns only those objects that match
// params.Class, with a confidence of at least params.ProbabilityThreshold.
// Boxes are clipped to the frame, and near-identical boxes are merged. A frame with no qualifying objects is not an error.
// Any failure inside the model (including a panic) is reported as ErrDetectionFailure.
func DetectPersons(detector ObjectDetector, img image.Image, params *DetectionParams) (detections []Detection, err error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrDetectionFailure)
	}
	if params == nil {
		params = NewDetectionParams()
	}

	defer func() {
		if r := recover(); r != nil {
			detections = nil
			err = fmt.Errorf("%w: model panic: %v", ErrDetectionFailure, r)
		}
	}()

	raw, err := detector.DetectObjects(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailure, err)
	}

	bounds := img.Bounds()
	detections = make([]Detection, 0, len(raw))
	for _, obj := range raw {
		if obj.Class != params.Class || obj.Confidence < params.ProbabilityThreshold {
			continue
		}
		box := obj.Box.Clip(bounds.Dx(), bounds.Dy())
		if box.Area() <= 0 {
			continue
		}
		detections = append(detections, Detection{
			Box:        box,
			Centroid:   box.Center(),
			Confidence: obj.Confidence,
			Class:      obj.Class,
		})
	}
	return MergeDuplicates(detections, params.MergeIoU), nil
}
