// Package backends builds the configured face inference backend.
package backends

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/deepface"
	"github.com/example/face-verify/internal/dlibface"
	"github.com/example/face-verify/internal/grpcclient"
	"github.com/example/face-verify/internal/imageprocessor"
	"github.com/example/face-verify/internal/mockface"
)

// Settings is the subset of the service configuration a backend needs.
type Settings struct {
	Backend            string
	Dim                int
	ImageProcessorAddr string
	DeepFaceURL        string
	DeepFaceModel      string
	DeepFaceDetector   string
	DlibModelsDir      string
	DlibUseCNN         bool
}

// FromConfig extracts the backend settings.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		Backend:            cfg.EmbeddingBackend,
		Dim:                cfg.EmbeddingDim,
		ImageProcessorAddr: cfg.ImageProcessorAddr,
		DeepFaceURL:        cfg.DeepFaceURL,
		DeepFaceModel:      cfg.DeepFaceModel,
		DeepFaceDetector:   cfg.DeepFaceDetector,
		DlibModelsDir:      cfg.DlibModelsDir,
		DlibUseCNN:         cfg.DlibUseCNN,
	}
}

// New loads the backend once. The returned close function releases it and
// is never nil.
func New(ctx context.Context, s Settings, logger *zap.Logger) (imageprocessor.Client, func() error, error) {
	noop := func() error { return nil }

	switch s.Backend {
	case config.BackendGRPC:
		client, conn, err := grpcclient.DialImageProcessor(ctx, s.ImageProcessorAddr, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("connect to image processor: %w", err)
		}
		return client, conn.Close, nil

	case config.BackendDeepFace:
		dc := deepface.DefaultConfig()
		dc.BaseURL = s.DeepFaceURL
		if s.DeepFaceModel != "" {
			dc.Model = s.DeepFaceModel
		}
		if s.DeepFaceDetector != "" {
			dc.Detector = s.DeepFaceDetector
		}
		return deepface.NewClient(dc, logger), noop, nil

	case config.BackendDlib:
		if s.Dim != dlibface.Dimension {
			return nil, noop, fmt.Errorf("dlib produces %d dimensional embeddings, EMBEDDING_DIM is %d", dlibface.Dimension, s.Dim)
		}
		b, err := dlibface.New(dlibface.Config{ModelsDir: s.DlibModelsDir, UseCNN: s.DlibUseCNN}, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("load dlib models: %w", err)
		}
		return b, b.Close, nil

	case config.BackendMock:
		logger.Warn("using mock embedding backend; results are not meaningful")
		return mockface.New(s.Dim), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown embedding backend %q", s.Backend)
	}
}
