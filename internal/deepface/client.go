package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/imageprocessor"
)

// ErrUnavailable is returned once every retry against the server failed.
var ErrUnavailable = errors.New("deepface service unavailable")

const maxBackoff = 30 * time.Second

// Config points the client at a DeepFace compatible REST server.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Model        string
	Detector     string
	RetryCount   int
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:5000",
		Timeout:      30 * time.Second,
		Model:        "Facenet512",
		Detector:     "mtcnn",
		RetryCount:   3,
		RetryBackoff: time.Second,
	}
}

type representRequest struct {
	Img      string `json:"img"`
	Model    string `json:"model_name"`
	Detector string `json:"detector_backend"`
}

type representResponse struct {
	Results []representResult `json:"results"`
}

type representResult struct {
	Embedding      []float64  `json:"embedding"`
	FacialArea     facialArea `json:"facial_area"`
	FaceConfidence float64    `json:"face_confidence"`
}

type facialArea struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.code, e.body)
}

// Client implements imageprocessor.Client over POST /represent.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *zap.Logger
}

func NewClient(config Config, logger *zap.Logger) *Client {
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.Named("deepface"),
	}
}

// Represent returns every face DeepFace found. A "face could not be detected"
// answer is an empty result, not an error.
func (c *Client) Represent(ctx context.Context, image []byte) ([]imageprocessor.DetectedFace, error) {
	req := representRequest{
		Img:      "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
		Model:    c.config.Model,
		Detector: c.config.Detector,
	}

	var resp representResponse
	if err := c.doRequestWithRetry(ctx, "/represent", req, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusBadRequest {
			if strings.Contains(strings.ToLower(se.body), "face could not be detected") {
				return []imageprocessor.DetectedFace{}, nil
			}
			return nil, domain.ErrInvalidImage.WithError(err)
		}
		return nil, err
	}

	faces := make([]imageprocessor.DetectedFace, 0, len(resp.Results))
	for _, r := range resp.Results {
		faces = append(faces, imageprocessor.DetectedFace{
			Box: imageprocessor.BoundingBox{
				X:      r.FacialArea.X,
				Y:      r.FacialArea.Y,
				Width:  r.FacialArea.W,
				Height: r.FacialArea.H,
			},
			Confidence: r.FaceConfidence,
			Embedding:  r.Embedding,
		})
	}
	return faces, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.RetryBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// doRequestWithRetry retries transport failures and 5xx answers. 4xx answers
// and undecodable bodies are returned at once.
func (c *Client) doRequestWithRetry(ctx context.Context, path string, body, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
			c.logger.Warn("retrying deepface request", zap.Int("attempt", attempt), zap.Error(lastErr))
		}

		lastErr = c.doRequest(ctx, path, body, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var se *statusError
		if errors.As(lastErr, &se) && se.code < http.StatusInternalServerError {
			return lastErr
		}
		var appErr *domain.AppError
		if errors.As(lastErr, &appErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.config.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return domain.ErrInternal.WithMessage("invalid response from deepface: %v", err)
	}
	return nil
}
