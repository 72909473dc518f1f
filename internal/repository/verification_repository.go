package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/logging"
)

// VerificationLog is one completed verification.
type VerificationLog struct {
	ID            uint      `gorm:"primaryKey"`
	RequestID     string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Subject       string    `gorm:"column:subject;index;size:128"`
	Score         float64   `gorm:"column:score"`
	Matched       bool      `gorm:"column:matched"`
	ScoreType     string    `gorm:"column:score_type;size:16"`
	Threshold     float64   `gorm:"column:threshold"`
	LatencyMs     float64   `gorm:"column:latency_ms"`
	ReferenceKind string    `gorm:"column:reference_kind;size:16"`
	SampleSHA1    string    `gorm:"column:sample_sha1;index;size:40"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationLog) TableName() string {
	return "verification_logs"
}

// MetricsAggregation holds raw totals over all logs.
type MetricsAggregation struct {
	TotalCount       int64
	MatchCount       int64
	AverageScore     float64
	AverageLatencyMs float64
}

// VerificationRepository stores verification logs through gorm.
type VerificationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewVerificationRepository(db *gorm.DB, logger *zap.Logger) *VerificationRepository {
	return &VerificationRepository{
		db:             db,
		logger:         logger.Named("verification_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *VerificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationLog{})
}

// SaveLog persists a log entry, retrying transient failures.
func (r *VerificationRepository) SaveLog(ctx context.Context, log *VerificationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndSubject returns the log of requestID owned by subject.
func (r *VerificationRepository) FindByRequestIDAndSubject(ctx context.Context, requestID, subject string) (*VerificationLog, error) {
	var log VerificationLog
	err := r.db.WithContext(ctx).First(&log, "request_id = ? AND subject = ?", requestID, subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound.WithMessage("verification %s", requestID)
	}
	if err != nil {
		return nil, logging.NewOperationError("repository.find_by_request_id", requestID, err)
	}
	return &log, nil
}

// FindDuplicatesByHash lists the subject's other verifications of the same
// sample image, oldest first.
func (r *VerificationRepository) FindDuplicatesByHash(ctx context.Context, subject, hash, excludeRequestID string) ([]*VerificationLog, error) {
	var logs []*VerificationLog
	err := r.db.WithContext(ctx).
		Where("subject = ? AND sample_sha1 = ? AND request_id <> ?", subject, hash, excludeRequestID).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.find_duplicates", excludeRequestID, err)
	}
	return logs, nil
}

// AggregateMetrics computes totals and averages over every stored log.
func (r *VerificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount       int64
		MatchCount       int64
		AverageScore     float64
		AverageLatencyMs float64
	}
	err := r.db.WithContext(ctx).
		Model(&VerificationLog{}).
		Select(`COUNT(*) AS total_count,
			COALESCE(SUM(CASE WHEN matched THEN 1 ELSE 0 END), 0) AS match_count,
			COALESCE(AVG(score), 0) AS average_score,
			COALESCE(AVG(latency_ms), 0) AS average_latency_ms`).
		Scan(&row).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.aggregate_metrics", "", err)
	}
	return &MetricsAggregation{
		TotalCount:       row.TotalCount,
		MatchCount:       row.MatchCount,
		AverageScore:     row.AverageScore,
		AverageLatencyMs: row.AverageLatencyMs,
	}, nil
}

func (r *VerificationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewRetriedOperationError(operation, requestID, attempt, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewRetriedOperationError(operation, requestID, attempt+1, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewRetriedOperationError(operation, requestID, attempts, err)
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
	return errors.As(err, &temporary) && temporary.Temporary()
}
