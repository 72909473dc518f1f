//go:build !dlib

package dlibface

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/imageprocessor"
)

type Backend struct{}

func New(Config, *zap.Logger) (*Backend, error) {
	return nil, ErrUnavailable
}

func (*Backend) Represent(context.Context, []byte) ([]imageprocessor.DetectedFace, error) {
	return nil, ErrUnavailable
}

func (*Backend) Close() error {
	return nil
}
