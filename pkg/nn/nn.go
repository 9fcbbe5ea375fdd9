package nn

import (
	"image"
)

// Package nn is the interface layer between the pipeline and an object detection model.
// The model itself is a black box. We only care about the boxes it returns.

const DefaultProbabilityThreshold = 0.5

// Two person boxes that overlap this much are almost certainly the same person
const DefaultMergeIoU = 0.85

// ObjectDetector is given an image, and returns zero or more detected objects.
// Boxes are in the pixel space of the image that was passed in.
type ObjectDetector interface {
	// Close releases any resources held by the detector
	Close()

	// DetectObjects returns all objects found in the image, of any class and any confidence.
	// Filtering is the caller's job.
	DetectObjects(img image.Image) ([]ObjectDetection, error)
}

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// DetectionParams control which raw detections are kept
type DetectionParams struct {
	Class                int     // Class id that we're interested in (eg COCOPerson)
	ProbabilityThreshold float32 // Value between 0 and 1. Detections below this are discarded.
	MergeIoU             float32 // Boxes that overlap by at least this much are treated as one person. Zero disables merging.
}

// Create a DetectionParams object for people, with the default threshold
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		Class:                COCOPerson,
		ProbabilityThreshold: DefaultProbabilityThreshold,
		MergeIoU:             DefaultMergeIoU,
	}
}
