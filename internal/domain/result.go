package domain

import (
	"math"
	"time"
)

// Reference kinds reported alongside a result.
const (
	ReferenceImage  = "image"
	ReferenceCached = "cached"
	ReferenceStored = "stored"
)

// VerificationResult is the outcome of one verification request.
type VerificationResult struct {
	RequestID     string  `json:"request_id"`
	MatchStatus   int     `json:"match_status"`
	Score         float64 `json:"score"`
	ScoreType     string  `json:"score_type"`
	Threshold     float64 `json:"score_threshold"`
	LatencyMs     float64 `json:"inferencing_latency_ms"`
	ReferenceKind string  `json:"reference_kind"`
}

// Matched reports whether the result classified the faces as the same person.
func (r *VerificationResult) Matched() bool {
	return r != nil && r.MatchStatus == 1
}

// LatencyMillis converts a duration to milliseconds rounded to two decimals.
func LatencyMillis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
