package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Embedding backends.
const (
	BackendGRPC     = "grpc"
	BackendDeepFace = "deepface"
	BackendDlib     = "dlib"
	BackendMock     = "mock"
)

// Tensor cache backends.
const (
	CacheDisk     = "disk"
	CacheS3       = "s3"
	CachePGVector = "pgvector"
)

// Database drivers for the verification log.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	// Server
	Port            int           `envconfig:"PORT" default:"8080"`
	Environment     string        `envconfig:"ENV" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	MaxUploadSize   int64         `envconfig:"MAX_UPLOAD_SIZE" default:"10485760"`

	// Embedding backend
	EmbeddingBackend   string `envconfig:"EMBEDDING_BACKEND" default:"grpc"`
	EmbeddingDim       int    `envconfig:"EMBEDDING_DIM" default:"512"`
	MaxImageSide       int    `envconfig:"MAX_IMAGE_SIDE" default:"1024"`
	ImageProcessorAddr string `envconfig:"IMAGE_PROCESSOR_ADDR" default:"inference:50051"`
	DeepFaceURL        string `envconfig:"DEEPFACE_URL" default:"http://localhost:5000"`
	DeepFaceModel      string `envconfig:"DEEPFACE_MODEL" default:"Facenet512"`
	DeepFaceDetector   string `envconfig:"DEEPFACE_DETECTOR" default:"mtcnn"`
	DlibModelsDir      string `envconfig:"DLIB_MODELS_DIR" default:"./models"`
	DlibUseCNN         bool   `envconfig:"DLIB_USE_CNN" default:"false"`

	// Tensor cache
	TensorCacheBackend string `envconfig:"TENSOR_CACHE_BACKEND" default:"disk"`
	TensorCacheDir     string `envconfig:"TENSOR_CACHE_DIR" default:"./tensor_cache"`
	S3Bucket           string `envconfig:"S3_BUCKET"`
	S3Region           string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint         string `envconfig:"S3_ENDPOINT"`
	S3Prefix           string `envconfig:"S3_PREFIX" default:"tensors/"`
	PGVectorURL        string `envconfig:"PGVECTOR_URL"`

	// Optional infrastructure; empty disables the feature.
	DatabaseDriver  string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseDSN     string `envconfig:"DATABASE_DSN"`
	RedisAddr       string `envconfig:"REDIS_ADDR"`
	NATSURL         string `envconfig:"NATS_URL"`
	MonitoringTopic string `envconfig:"MONITORING_TOPIC" default:"facematch.monitoring"`

	// Security
	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWTAudience string `envconfig:"JWT_AUDIENCE"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the environment without validating, for tools that override
// settings with flags afterwards.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects unknown backends and missing backend settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.EmbeddingDim <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIM must be positive"))
	}
	if c.MaxImageSide < 0 {
		errs = append(errs, errors.New("MAX_IMAGE_SIDE must not be negative"))
	}

	switch c.EmbeddingBackend {
	case BackendGRPC:
		if c.ImageProcessorAddr == "" {
			errs = append(errs, errors.New("IMAGE_PROCESSOR_ADDR is required for the grpc backend"))
		}
	case BackendDeepFace:
		if c.DeepFaceURL == "" {
			errs = append(errs, errors.New("DEEPFACE_URL is required for the deepface backend"))
		}
	case BackendDlib:
		if c.DlibModelsDir == "" {
			errs = append(errs, errors.New("DLIB_MODELS_DIR is required for the dlib backend"))
		}
	case BackendMock:
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_BACKEND %q", c.EmbeddingBackend))
	}

	switch c.TensorCacheBackend {
	case CacheDisk:
		if c.TensorCacheDir == "" {
			errs = append(errs, errors.New("TENSOR_CACHE_DIR is required for the disk cache"))
		}
	case CacheS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 cache"))
		}
	case CachePGVector:
		if c.PGVectorURL == "" && c.DatabaseDSN == "" {
			errs = append(errs, errors.New("PGVECTOR_URL or DATABASE_DSN is required for the pgvector cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TENSOR_CACHE_BACKEND %q", c.TensorCacheBackend))
	}

	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	return errors.Join(errs...)
}

// PGVectorDSN is the connection string for the pgvector cache, falling back
// to the verification log database.
func (c *Config) PGVectorDSN() string {
	if c.PGVectorURL != "" {
		return c.PGVectorURL
	}
	return c.DatabaseDSN
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
