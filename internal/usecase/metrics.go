package usecase

import (
	"context"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/scoring"
)

// MetricsSummary aggregates every logged verification.
type MetricsSummary struct {
	TotalRequests    int64   `json:"total_requests"`
	MatchedRequests  int64   `json:"matched_requests"`
	MatchRate        float64 `json:"match_rate"`
	AverageScore     float64 `json:"average_score"`
	AverageLatencyMs float64 `json:"average_inferencing_latency_ms"`
}

// GetMetricsSummary needs the verification history.
func (uc *VerificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, errHistoryDisabled
	}

	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:    aggregation.TotalCount,
		MatchedRequests:  aggregation.MatchCount,
		AverageScore:     scoring.Round(aggregation.AverageScore, 4),
		AverageLatencyMs: scoring.Round(aggregation.AverageLatencyMs, 2),
	}
	if aggregation.TotalCount > 0 {
		summary.MatchRate = scoring.Round(float64(aggregation.MatchCount)/float64(aggregation.TotalCount), 4)
	}
	return summary, nil
}

var errHistoryDisabled = domain.ErrNotFound.WithMessage("verification history is not configured")
