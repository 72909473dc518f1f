package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
	"github.com/example/face-verify/internal/imageprocessor"
	"github.com/example/face-verify/internal/logging"
	"github.com/example/face-verify/internal/repository"
	"github.com/example/face-verify/internal/scoring"
	"github.com/example/face-verify/internal/telemetry"
	"github.com/example/face-verify/internal/tensorcache"
)

const resultTTL = 5 * time.Minute

// Embedder is the loaded embedding model. Prepare holds the decoding work
// that is kept out of the reported inference latency.
type Embedder interface {
	Embed(ctx context.Context, image []byte) (embedding.Vector, error)
	Prepare(image []byte) (*imageprocessor.Normalized, error)
	EmbedNormalized(ctx context.Context, normalized *imageprocessor.Normalized) (embedding.Vector, error)
	LoadCached(data []byte) (embedding.Vector, error)
	Dimension() int
}

// TensorCache holds named reference vectors.
type TensorCache interface {
	Save(ctx context.Context, name string, v embedding.Vector) error
	Load(ctx context.Context, name string) (embedding.Vector, error)
}

// VerificationRepository is the verification history.
type VerificationRepository interface {
	SaveLog(ctx context.Context, log *repository.VerificationLog) error
	FindByRequestIDAndSubject(ctx context.Context, requestID, subject string) (*repository.VerificationLog, error)
	FindDuplicatesByHash(ctx context.Context, subject, hash, excludeRequestID string) ([]*repository.VerificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Dependencies wires a VerificationUseCase. Embedder is required; a nil
// Tensors disables stored references, and nil Repo, Cache or Publisher
// disable history, result caching and telemetry.
type Dependencies struct {
	Embedder  Embedder
	Tensors   TensorCache
	Repo      VerificationRepository
	Cache     Cache
	Publisher telemetry.Publisher
	Logger    *zap.Logger
}

// VerificationUseCase compares a reference face with a sample face.
type VerificationUseCase struct {
	embedder       Embedder
	tensors        TensorCache
	repo           VerificationRepository
	cache          Cache
	publisher      telemetry.Publisher
	logger         *zap.Logger
	now            func() time.Time
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// VerificationRequest is one verification. Threshold is the raw caller value.
type VerificationRequest struct {
	Reference Reference
	Sample    []byte
	ScoreType string
	Threshold string
	Subject   string
}

// StoredResult is a result as kept in the history.
type StoredResult struct {
	domain.VerificationResult
	Subject    string    `json:"subject,omitempty"`
	SampleSHA1 string    `json:"sample_sha1"`
	CreatedAt  time.Time `json:"created_at"`
}

// DuplicateReport lists earlier verifications of the same sample image.
type DuplicateReport struct {
	Request    *StoredResult   `json:"request"`
	Duplicates []*StoredResult `json:"duplicates"`
}

type cachedVerification struct {
	Result     domain.VerificationResult `json:"result"`
	Subject    string                    `json:"subject"`
	SampleSHA1 string                    `json:"sample_sha1"`
	CreatedAt  time.Time                 `json:"created_at"`
}

func NewVerificationUseCase(deps Dependencies) (*VerificationUseCase, error) {
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = telemetry.Nop{}
	}
	return &VerificationUseCase{
		embedder:       deps.Embedder,
		tensors:        deps.Tensors,
		repo:           deps.Repo,
		cache:          deps.Cache,
		publisher:      publisher,
		logger:         logger.Named("verification_usecase"),
		now:            time.Now,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}, nil
}

// VerifyPair compares two photographs.
func (uc *VerificationUseCase) VerifyPair(ctx context.Context, reference, sample []byte, scoreType, threshold string) (*domain.VerificationResult, error) {
	return uc.Verify(ctx, VerificationRequest{Reference: ImageReference{Data: reference}, Sample: sample, ScoreType: scoreType, Threshold: threshold})
}

// VerifyCached compares a serialized reference vector with a photograph.
func (uc *VerificationUseCase) VerifyCached(ctx context.Context, cached, sample []byte, scoreType, threshold string) (*domain.VerificationResult, error) {
	return uc.Verify(ctx, VerificationRequest{Reference: CachedReference{Data: cached}, Sample: sample, ScoreType: scoreType, Threshold: threshold})
}

// VerifyStored compares the tensor cache entry name with a photograph.
func (uc *VerificationUseCase) VerifyStored(ctx context.Context, name string, sample []byte, scoreType, threshold string) (*domain.VerificationResult, error) {
	return uc.Verify(ctx, VerificationRequest{Reference: StoredReference{Name: name}, Sample: sample, ScoreType: scoreType, Threshold: threshold})
}

// Verify validates the request before any embedding work, embeds or loads
// both sides, scores them and classifies the score. The reported latency
// covers backend inference and scoring only: image decoding, artifact
// parsing and tensor cache reads happen before the clock starts.
//
// Telemetry, history and result caching run after the result is final and
// their failures are logged, never returned.
func (uc *VerificationUseCase) Verify(ctx context.Context, req VerificationRequest) (*domain.VerificationResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify", requestID)

	scoreType, err := scoring.ParseScoreType(req.ScoreType)
	if err != nil {
		return nil, err
	}
	threshold, err := scoring.ParseThreshold(req.Threshold)
	if err != nil {
		return nil, err
	}
	if req.Reference == nil {
		return nil, domain.ErrInvalidImage.WithMessage("reference is required")
	}
	if len(req.Sample) == 0 {
		return nil, domain.ErrInvalidImage.WithMessage("sample image is empty")
	}

	ref, err := uc.resolveReference(ctx, req.Reference)
	if err != nil {
		opLogger.Info("reference rejected", zap.String("reference_kind", req.Reference.kind()), zap.Error(err))
		return nil, err
	}
	preparedSample, err := uc.embedder.Prepare(req.Sample)
	if err != nil {
		err = forImage(err, "sample")
		opLogger.Info("sample rejected", zap.Error(err))
		return nil, err
	}

	start := uc.now()
	reference := ref.vector
	if ref.image != nil {
		reference, err = uc.embedder.EmbedNormalized(ctx, ref.image)
		if err != nil {
			err = forImage(err, "reference")
			opLogger.Info("reference rejected", zap.String("reference_kind", req.Reference.kind()), zap.Error(err))
			return nil, err
		}
	}
	sample, err := uc.embedder.EmbedNormalized(ctx, preparedSample)
	if err != nil {
		err = forImage(err, "sample")
		opLogger.Info("sample rejected", zap.Error(err))
		return nil, err
	}
	score, err := scoring.Score(scoreType, reference, sample)
	if err != nil {
		return nil, err
	}
	latency := uc.now().Sub(start)

	result := &domain.VerificationResult{
		RequestID:     requestID,
		Score:         score,
		ScoreType:     string(scoreType),
		Threshold:     threshold,
		LatencyMs:     domain.LatencyMillis(latency),
		ReferenceKind: req.Reference.kind(),
	}
	if scoring.MatchStatus(score, threshold) {
		result.MatchStatus = 1
	}

	opLogger.Info("verification completed",
		zap.String("reference_kind", result.ReferenceKind),
		zap.String("score_type", result.ScoreType),
		zap.Float64("score", result.Score),
		zap.Int("match_status", result.MatchStatus),
		zap.Float64("latency_ms", result.LatencyMs),
	)

	uc.publisher.Publish(ctx, result)
	uc.record(ctx, req, result)
	return result, nil
}

// resolvedReference is either a vector ready for scoring or an image still
// to be embedded.
type resolvedReference struct {
	vector embedding.Vector
	image  *imageprocessor.Normalized
}

func (uc *VerificationUseCase) resolveReference(ctx context.Context, ref Reference) (resolvedReference, error) {
	switch r := ref.(type) {
	case ImageReference:
		normalized, err := uc.embedder.Prepare(r.Data)
		if err != nil {
			return resolvedReference{}, forImage(err, "reference")
		}
		return resolvedReference{image: normalized}, nil
	case CachedReference:
		v, err := uc.embedder.LoadCached(r.Data)
		return resolvedReference{vector: v}, err
	case StoredReference:
		if uc.tensors == nil {
			return resolvedReference{}, domain.ErrNotFound.WithMessage("tensor cache is not configured")
		}
		v, err := uc.tensors.Load(ctx, r.Name)
		return resolvedReference{vector: v}, err
	default:
		return resolvedReference{}, domain.ErrInternal.WithMessage("unknown reference type %T", ref)
	}
}

// forImage names which image an input error belongs to.
func forImage(err error, role string) error {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || appErr.Kind != domain.KindInput {
		return err
	}
	if appErr.Err == nil {
		return appErr.WithMessage("%s image", role)
	}
	return appErr.WithError(fmt.Errorf("%s image: %w", role, appErr.Err))
}

// record writes the history entry and the cached copy of result.
func (uc *VerificationUseCase) record(ctx context.Context, req VerificationRequest, result *domain.VerificationResult) {
	if uc.repo == nil && uc.cache == nil {
		return
	}

	hash := sha1.Sum(req.Sample)
	hashHex := hex.EncodeToString(hash[:])
	createdAt := uc.now().UTC()
	opLogger := logging.WithOperation(uc.logger, "usecase.record", result.RequestID)

	if uc.repo != nil {
		log := &repository.VerificationLog{
			RequestID:     result.RequestID,
			Subject:       req.Subject,
			Score:         result.Score,
			Matched:       result.Matched(),
			ScoreType:     result.ScoreType,
			Threshold:     result.Threshold,
			LatencyMs:     result.LatencyMs,
			ReferenceKind: result.ReferenceKind,
			SampleSHA1:    hashHex,
			CreatedAt:     createdAt,
		}
		if err := uc.repo.SaveLog(ctx, log); err != nil {
			opLogger.Warn("failed to persist verification log", zap.Error(err))
		}
	}

	if uc.cache != nil {
		serialized, err := json.Marshal(cachedVerification{
			Result:     *result,
			Subject:    req.Subject,
			SampleSHA1: hashHex,
			CreatedAt:  createdAt,
		})
		if err != nil {
			opLogger.Warn("failed to serialize verification result", zap.Error(err))
			return
		}
		if err := uc.withRedisRetry(ctx, result.RequestID, "cache.set.result", func() error {
			return uc.cache.SetResult(ctx, result.RequestID, serialized, resultTTL)
		}); err != nil {
			opLogger.Warn("failed to cache verification result", zap.Error(err))
		}
	}
}

// GetResult reads a recent result from the cache, then from the history.
// Results are only visible to the subject that requested them.
func (uc *VerificationUseCase) GetResult(ctx context.Context, subject, requestID string) (*StoredResult, error) {
	if uc.cache != nil {
		cached, err := uc.cachedResult(ctx, requestID)
		switch {
		case err == nil:
			var payload cachedVerification
			if err := json.Unmarshal(cached, &payload); err != nil {
				logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached result", zap.Error(err))
			} else if payload.Subject == subject {
				return &StoredResult{
					VerificationResult: payload.Result,
					Subject:            payload.Subject,
					SampleSHA1:         payload.SampleSHA1,
					CreatedAt:          payload.CreatedAt,
				}, nil
			}
		case !errors.Is(err, ErrCacheMiss):
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, domain.ErrNotFound.WithMessage("verification %s", requestID)
	}
	log, err := uc.repo.FindByRequestIDAndSubject(ctx, requestID, subject)
	if err != nil {
		return nil, err
	}
	return storedFromLog(log), nil
}

// GetDuplicateReport lists the subject's earlier verifications that used the
// same sample image as requestID.
func (uc *VerificationUseCase) GetDuplicateReport(ctx context.Context, subject, requestID string) (*DuplicateReport, error) {
	if uc.repo == nil {
		return nil, errHistoryDisabled
	}

	log, err := uc.repo.FindByRequestIDAndSubject(ctx, requestID, subject)
	if err != nil {
		return nil, err
	}
	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, subject, log.SampleSHA1, log.RequestID)
	if err != nil {
		return nil, err
	}

	report := &DuplicateReport{
		Request:    storedFromLog(log),
		Duplicates: make([]*StoredResult, 0, len(duplicates)),
	}
	for _, d := range duplicates {
		report.Duplicates = append(report.Duplicates, storedFromLog(d))
	}
	return report, nil
}

// SaveEntry embeds image and stores it in the tensor cache as name. It
// returns the vector dimension.
func (uc *VerificationUseCase) SaveEntry(ctx context.Context, name string, image []byte) (int, error) {
	if uc.tensors == nil {
		return 0, domain.ErrNotFound.WithMessage("tensor cache is not configured")
	}
	if err := tensorcache.ValidateName(name); err != nil {
		return 0, err
	}

	v, err := uc.embedder.Embed(ctx, image)
	if err != nil {
		return 0, err
	}
	if err := uc.tensors.Save(ctx, name, v); err != nil {
		return 0, err
	}
	uc.logger.Info("cache entry stored", zap.String("name", name), zap.Int("dimension", v.Dim()))
	return v.Dim(), nil
}

// LoadEntryArtifact returns the serialized vector of a cache entry, in the
// format accepted as a cached reference.
func (uc *VerificationUseCase) LoadEntryArtifact(ctx context.Context, name string) ([]byte, error) {
	if uc.tensors == nil {
		return nil, domain.ErrNotFound.WithMessage("tensor cache is not configured")
	}
	v, err := uc.tensors.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return embedding.Encode(v), nil
}

func storedFromLog(log *repository.VerificationLog) *StoredResult {
	result := &StoredResult{
		VerificationResult: domain.VerificationResult{
			RequestID:     log.RequestID,
			Score:         log.Score,
			ScoreType:     log.ScoreType,
			Threshold:     log.Threshold,
			LatencyMs:     log.LatencyMs,
			ReferenceKind: log.ReferenceKind,
		},
		Subject:    log.Subject,
		SampleSHA1: log.SampleSHA1,
		CreatedAt:  log.CreatedAt,
	}
	if log.Matched {
		result.MatchStatus = 1
	}
	return result
}

func (uc *VerificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewRetriedOperationError(operation, requestID, attempt, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, ErrCacheMiss) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewRetriedOperationError(operation, requestID, attempt+1, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewRetriedOperationError(operation, requestID, uc.retryAttempts, err)
}

func (uc *VerificationUseCase) cachedResult(ctx context.Context, requestID string) ([]byte, error) {
	var payload []byte
	err := uc.withRedisRetry(ctx, requestID, "cache.get.result", func() error {
		value, err := uc.cache.GetResult(ctx, requestID)
		payload = value
		return err
	})
	return payload, err
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
