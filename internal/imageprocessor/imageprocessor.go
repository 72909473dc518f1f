package imageprocessor

import "context"

// BoundingBox locates a detected face in pixel coordinates of the submitted image.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Area returns the box area in pixels.
func (b BoundingBox) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// DetectedFace is one face found by the inference backend together with its embedding.
type DetectedFace struct {
	Box        BoundingBox
	Confidence float64
	Embedding  []float64
}

// Client is the opaque face detection and embedding capability. It receives
// JPEG bytes and returns every face it found; an empty slice means none.
type Client interface {
	Represent(ctx context.Context, image []byte) ([]DetectedFace, error)
}
