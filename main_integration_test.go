package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
	"github.com/example/face-verify/internal/mockface"
	"github.com/example/face-verify/internal/tensorcache"
	"github.com/example/face-verify/internal/usecase"
)

func TestServerGracefulShutdown(t *testing.T) {
	logger := zap.NewNop()

	requestStarted := make(chan struct{})
	releaseRequest := make(chan struct{})
	defer func() {
		select {
		case <-releaseRequest:
		default:
			close(releaseRequest)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/identity", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-requestStarted:
		default:
			close(requestStarted)
		}
		<-releaseRequest
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	t.Log("creating listener")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: mux}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	t.Logf("listening on %s", addr)
	waitForServer(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		t.Log("sending request")
		resp, err := client.Get("http://" + addr + "/identity")
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-requestStarted:
		t.Log("request started")
	case <-time.After(2 * time.Second):
		t.Fatal("request did not start in time")
	}

	t.Log("sending signal")
	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(releaseRequest)
	t.Log("released request")

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
		t.Log("server shutdown complete")
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}

const testDim = 64

func newTestAPI(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	provider, err := embedding.NewProvider(mockface.New(testDim), testDim, 256, logger)
	if err != nil {
		t.Fatalf("build provider: %v", err)
	}
	blobs, err := tensorcache.NewDiskBlobs(t.TempDir())
	if err != nil {
		t.Fatalf("open tensor cache: %v", err)
	}
	uc, err := usecase.NewVerificationUseCase(usecase.Dependencies{
		Embedder: provider,
		Tensors:  tensorcache.New(tensorcache.NewBlobStore(blobs), testDim, logger),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("build use case: %v", err)
	}

	cfg := &config.Config{Environment: "test", MaxUploadSize: 1 << 20, RequestTimeout: 5 * time.Second}
	return newRouter(cfg, uc, logger)
}

func portrait(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func blank(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 32))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func postForm(t *testing.T, router http.Handler, method, path string, fields map[string]string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for field, data := range files {
		part, err := w.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeResult(t *testing.T, resp *httptest.ResponseRecorder) domain.VerificationResult {
	t.Helper()
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result domain.VerificationResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return result
}

func TestAPIVerifiesEndToEnd(t *testing.T) {
	router := newTestAPI(t)
	alice, bob := portrait(t, 10), portrait(t, 200)
	params := map[string]string{"type": "cosine", "threshold": "0.35"}

	same := decodeResult(t, postForm(t, router, http.MethodPost, "/identity", params,
		map[string][]byte{"reference": alice, "sample": alice}))
	if !same.Matched() || same.Score != 0 || same.RequestID == "" {
		t.Fatalf("expected identical images to match: %+v", same)
	}

	different := decodeResult(t, postForm(t, router, http.MethodPost, "/identity", params,
		map[string][]byte{"reference": alice, "sample": bob}))
	if different.Matched() {
		t.Fatalf("expected different images not to match: %+v", different)
	}

	resp := postForm(t, router, http.MethodPut, "/cache/alice", nil, map[string][]byte{"image": alice})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 storing entry, got %d: %s", resp.Code, resp.Body.String())
	}

	stored := decodeResult(t, postForm(t, router, http.MethodPost, "/verify/stored",
		map[string]string{"type": "euclidean", "threshold": "0.5", "reference_name": "alice"},
		map[string][]byte{"sample": alice}))
	if !stored.Matched() || stored.ReferenceKind != domain.ReferenceStored {
		t.Fatalf("expected stored reference match: %+v", stored)
	}

	req := httptest.NewRequest(http.MethodGet, "/cache/alice", nil)
	artifact := httptest.NewRecorder()
	router.ServeHTTP(artifact, req)
	if artifact.Code != http.StatusOK {
		t.Fatalf("expected 200 reading artifact, got %d", artifact.Code)
	}

	cached := decodeResult(t, postForm(t, router, http.MethodPost, "/cached_data", params,
		map[string][]byte{"reference": artifact.Body.Bytes(), "sample": alice}))
	if !cached.Matched() || cached.ReferenceKind != domain.ReferenceCached {
		t.Fatalf("expected cached reference match: %+v", cached)
	}
}

func TestAPIReportsInputErrors(t *testing.T) {
	router := newTestAPI(t)
	alice := portrait(t, 10)

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string][]byte
		path   string
		status int
	}{
		{"no face", map[string]string{"type": "cosine", "threshold": "0.35"},
			map[string][]byte{"reference": alice, "sample": blank(t)}, "/identity", http.StatusUnprocessableEntity},
		{"bad threshold", map[string]string{"type": "cosine", "threshold": "-1"},
			map[string][]byte{"reference": alice, "sample": alice}, "/identity", http.StatusBadRequest},
		{"bad score type", map[string]string{"type": "manhattan", "threshold": "0.3"},
			map[string][]byte{"reference": alice, "sample": alice}, "/identity", http.StatusBadRequest},
		{"unknown entry", map[string]string{"type": "cosine", "threshold": "0.3", "reference_name": "nobody"},
			map[string][]byte{"sample": alice}, "/verify/stored", http.StatusNotFound},
		{"corrupt artifact", map[string]string{"type": "cosine", "threshold": "0.3"},
			map[string][]byte{"reference": []byte("garbage"), "sample": alice}, "/cached_data", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postForm(t, router, http.MethodPost, tt.path, tt.fields, tt.files)
			if resp.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestAPIHistoryDisabledWithoutDatabase(t *testing.T) {
	router := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/result/anything", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
