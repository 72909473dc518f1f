// Package mockface is a deterministic embedding backend for development and
// tests. It needs no model: any image with visible variation is one face
// covering the whole frame, and a flat image has no face.
package mockface

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/imageprocessor"
)

// flatTolerance is the luminance spread below which an image counts as blank.
const flatTolerance = 4

type Backend struct {
	dim int
}

func New(dim int) *Backend {
	if dim <= 0 {
		dim = 512
	}
	return &Backend{dim: dim}
}

func (b *Backend) Represent(ctx context.Context, data []byte) ([]imageprocessor.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	if isFlat(img) {
		return []imageprocessor.DetectedFace{}, nil
	}

	bounds := img.Bounds()
	return []imageprocessor.DetectedFace{{
		Box: imageprocessor.BoundingBox{
			X:      bounds.Min.X,
			Y:      bounds.Min.Y,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		},
		Confidence: 1,
		Embedding:  Embedding(data, b.dim),
	}}, nil
}

// Embedding expands the SHA-256 of data into a unit vector of dim components.
func Embedding(data []byte, dim int) []float64 {
	seed := sha256.Sum256(data)
	out := make([]float64, dim)

	var block [sha256.Size]byte
	var counter [4]byte
	for i := 0; i < dim; i++ {
		if i%(sha256.Size/2) == 0 {
			binary.BigEndian.PutUint32(counter[:], uint32(i))
			block = sha256.Sum256(append(seed[:], counter[:]...))
		}
		j := (i % (sha256.Size / 2)) * 2
		out[i] = float64(binary.BigEndian.Uint16(block[j:]))/math.MaxUint16*2 - 1
	}

	var norm float64
	for _, v := range out {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

func isFlat(img image.Image) bool {
	bounds := img.Bounds()
	if bounds.Empty() {
		return true
	}

	lo, hi := uint32(math.MaxUint32), uint32(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			lum := (299*r + 587*g + 114*b) / 1000 >> 8
			if lum < lo {
				lo = lum
			}
			if lum > hi {
				hi = lum
			}
			if hi-lo > flatTolerance {
				return false
			}
		}
	}
	return true
}
