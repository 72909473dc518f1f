package tensorcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
)

// fakeS3 serves path style PUT and GET object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3Cache(t *testing.T) (*Cache, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	blobs, err := NewS3Blobs(
		S3Config{Bucket: "faces", Region: "us-east-1", Endpoint: server.URL, Prefix: "tensors/"},
		aws.NewConfig().WithCredentials(credentials.NewStaticCredentials("id", "secret", "")),
	)
	require.NoError(t, err)
	return New(NewBlobStore(blobs), 3, zap.NewNop()), fake
}

func TestS3Blobs_RoundTrip(t *testing.T) {
	cache, fake := newS3Cache(t)
	ctx := context.Background()
	v := embedding.New([]float32{0.5, 0.25, -1})

	require.NoError(t, cache.Save(ctx, "alice", v))
	got, err := cache.Load(ctx, "alice")

	require.NoError(t, err)
	assert.True(t, v.Equal(got, 0))
	assert.Contains(t, fake.objects, "/faces/tensors/alice.emb")
}

func TestS3Blobs_MissingObject(t *testing.T) {
	cache, _ := newS3Cache(t)

	_, err := cache.Load(context.Background(), "ghost")

	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestNewS3Blobs_RequiresBucket(t *testing.T) {
	_, err := NewS3Blobs(S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
