package nn

import (
	flatbush "github.com/bmharper/flatbush-go"
)

// MergeDuplicates removes detections that overlap a more confident detection by at least minIoU.
// Some models emit two boxes for one person, which would otherwise spawn a phantom track.
// The order of the retained detections is preserved.
func MergeDuplicates(input []Detection, minIoU float32) []Detection {
	if len(input) < 2 || minIoU <= 0 {
		return input
	}

	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[float32]()
	fb.Reserve(len(input))
	for _, d := range input {
		fb.Add(d.Box.X, d.Box.Y, d.Box.X2(), d.Box.Y2())
	}
	fb.Finish()

	deleted := make([]bool, len(input))
	for i, in := range input {
		if deleted[i] {
			continue
		}
		for _, j := range fb.Search(in.Box.X, in.Box.Y, in.Box.X2(), in.Box.Y2()) {
			if i == j || deleted[j] {
				continue
			}
			if in.Box.IOU(input[j].Box) < minIoU {
				continue
			}
			// Keep the more confident of the two. On a tie, keep the first.
			if input[j].Confidence > in.Confidence {
				deleted[i] = true
				break
			}
			deleted[j] = true
		}
	}

	retain := make([]Detection, 0, len(input))
	for i, d := range input {
		if !deleted[i] {
			retain = append(retain, d)
		}
	}
	return retain
}
