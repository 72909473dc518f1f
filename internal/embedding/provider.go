package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/imageprocessor"
)

// Provider turns images into vectors using a shared inference backend. The
// backend is created once at startup and reused by every request; Provider
// adds no locking of its own around inference.
//
// Results are deterministic for identical inputs on the same backend, except
// for floating point differences the backend itself introduces (for example
// reduction order on different accelerators).
type Provider struct {
	backend imageprocessor.Client
	dim     int
	maxSide int
	logger  *zap.Logger
}

// NewProvider wraps backend. dim is the embedding width the backend is
// configured to produce; maxSide bounds the image size sent to it.
func NewProvider(backend imageprocessor.Client, dim, maxSide int, logger *zap.Logger) (*Provider, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedding backend is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	return &Provider{
		backend: backend,
		dim:     dim,
		maxSide: maxSide,
		logger:  logger.Named("embedding_provider"),
	}, nil
}

// Dimension returns the configured embedding width.
func (p *Provider) Dimension() int {
	return p.dim
}

// Embed detects the primary face in image and returns its embedding. When
// several faces are found the largest bounding box wins; ties go to the
// higher detection confidence, then to detection order.
func (p *Provider) Embed(ctx context.Context, image []byte) (Vector, error) {
	normalized, err := p.Prepare(image)
	if err != nil {
		return Vector{}, err
	}
	return p.EmbedNormalized(ctx, normalized)
}

// Prepare decodes image and bounds its size for the backend. It does no
// inference.
func (p *Provider) Prepare(image []byte) (*imageprocessor.Normalized, error) {
	return imageprocessor.Normalize(image, p.maxSide)
}

// EmbedNormalized runs detection and embedding on an image returned by Prepare.
func (p *Provider) EmbedNormalized(ctx context.Context, normalized *imageprocessor.Normalized) (Vector, error) {
	faces, err := p.backend.Represent(ctx, normalized.JPEG)
	if err != nil {
		return Vector{}, fmt.Errorf("represent image: %w", err)
	}
	if len(faces) == 0 {
		return Vector{}, domain.ErrNoFaceDetected
	}

	primary := SelectPrimary(faces)
	if len(faces) > 1 {
		p.logger.Debug("multiple faces detected, using largest",
			zap.Int("faces", len(faces)),
			zap.Int("area", primary.Box.Area()),
		)
	}

	v := FromFloat64(primary.Embedding)
	if v.Dim() != p.dim {
		return Vector{}, domain.ErrInternal.WithError(
			fmt.Errorf("%w: backend returned %d components, configured for %d", domain.ErrDimensionMismatch, v.Dim(), p.dim))
	}
	if !v.Finite() {
		return Vector{}, domain.ErrInternal.WithMessage("backend returned non-finite embedding values")
	}
	return v, nil
}

// LoadCached decodes a serialized vector, checking it has the configured width.
func (p *Provider) LoadCached(data []byte) (Vector, error) {
	return Decode(data, p.dim)
}

// SelectPrimary picks the face to verify out of a non-empty detection list.
func SelectPrimary(faces []imageprocessor.DetectedFace) imageprocessor.DetectedFace {
	best := faces[0]
	for _, f := range faces[1:] {
		area, bestArea := f.Box.Area(), best.Box.Area()
		if area > bestArea || (area == bestArea && f.Confidence > best.Confidence) {
			best = f
		}
	}
	return best
}
