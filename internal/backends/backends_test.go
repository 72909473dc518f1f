package backends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/deepface"
	"github.com/example/face-verify/internal/mockface"
)

func TestNew(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	client, closeFn, err := New(ctx, Settings{Backend: config.BackendMock, Dim: 16}, logger)
	require.NoError(t, err)
	assert.IsType(t, &mockface.Backend{}, client)
	assert.NoError(t, closeFn())

	client, _, err = New(ctx, Settings{Backend: config.BackendDeepFace, Dim: 512, DeepFaceURL: "http://deepface:5000"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &deepface.Client{}, client)

	_, closeFn, err = New(ctx, Settings{Backend: config.BackendDlib, Dim: 512}, logger)
	assert.ErrorContains(t, err, "128")
	assert.NotNil(t, closeFn)

	_, _, err = New(ctx, Settings{Backend: "onnx"}, logger)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	s := FromConfig(&config.Config{EmbeddingBackend: config.BackendGRPC, EmbeddingDim: 512, ImageProcessorAddr: "inference:50051"})

	assert.Equal(t, Settings{Backend: config.BackendGRPC, Dim: 512, ImageProcessorAddr: "inference:50051"}, s)
}
