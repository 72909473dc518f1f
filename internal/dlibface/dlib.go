//go:build dlib

package dlibface

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/imageprocessor"
)

// Backend wraps one recognizer loaded at startup. Calls are serialized.
type Backend struct {
	mu         sync.Mutex
	recognizer *face.Recognizer
	useCNN     bool
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	recognizer, err := face.NewRecognizer(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", cfg.ModelsDir, err)
	}
	logger.Info("dlib recognizer loaded", zap.String("models_dir", cfg.ModelsDir), zap.Bool("cnn", cfg.UseCNN))
	return &Backend{recognizer: recognizer, useCNN: cfg.UseCNN, logger: logger.Named("dlib")}, nil
}

func (b *Backend) Represent(ctx context.Context, image []byte) ([]imageprocessor.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var (
		found []face.Face
		err   error
	)
	if b.useCNN {
		found, err = b.recognizer.RecognizeCNN(image)
	} else {
		found, err = b.recognizer.Recognize(image)
	}
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	faces := make([]imageprocessor.DetectedFace, 0, len(found))
	for _, f := range found {
		desc := [Dimension]float32(f.Descriptor)
		embedding := make([]float64, Dimension)
		for i, v := range desc {
			embedding[i] = float64(v)
		}
		faces = append(faces, imageprocessor.DetectedFace{
			Box: imageprocessor.BoundingBox{
				X:      f.Rectangle.Min.X,
				Y:      f.Rectangle.Min.Y,
				Width:  f.Rectangle.Dx(),
				Height: f.Rectangle.Dy(),
			},
			// dlib reports no per-face score
			Confidence: 1,
			Embedding:  embedding,
		})
	}
	return faces, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recognizer.Close()
	return nil
}
