package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
)

// ScoreType selects the distance metric.
type ScoreType string

const (
	Cosine    ScoreType = "cosine"
	Euclidean ScoreType = "euclidean"
)

// Decimals a score keeps before classification, per metric.
const (
	cosinePrecision    = 4
	euclideanPrecision = 2
)

// ParseScoreType maps a request selector to a ScoreType.
func ParseScoreType(s string) (ScoreType, error) {
	switch ScoreType(strings.ToLower(strings.TrimSpace(s))) {
	case Cosine:
		return Cosine, nil
	case Euclidean:
		return Euclidean, nil
	default:
		return "", domain.ErrUnsupportedScoreType.WithMessage("score type %q", s)
	}
}

// ParseThreshold parses a caller supplied threshold. A missing value is an
// error, never a default.
func ParseThreshold(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, domain.ErrInvalidThreshold.WithMessage("threshold is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, domain.ErrInvalidThreshold.WithMessage("threshold %q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, domain.ErrInvalidThreshold.WithMessage("threshold %q is out of range", s)
	}
	return v, nil
}

// CosineScore returns 1 - cosine similarity: 0 for identical direction, 2 for
// opposite. A zero vector has no direction and scores 1.
func CosineScore(a, b embedding.Vector) (float64, error) {
	if err := sameDim(a, b); err != nil {
		return 0, err
	}

	var dot, normA, normB float64
	for i := 0; i < a.Dim(); i++ {
		x, y := float64(a.At(i)), float64(b.At(i))
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1, nil
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push |similarity| past 1
	similarity = math.Max(-1, math.Min(1, similarity))
	return 1 - similarity, nil
}

// EuclideanScore returns the L2 distance between a and b.
func EuclideanScore(a, b embedding.Vector) (float64, error) {
	if err := sameDim(a, b); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < a.Dim(); i++ {
		d := float64(a.At(i)) - float64(b.At(i))
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Score computes the selected metric: cosine rounded to 4 decimals, euclidean
// to 2.
func Score(t ScoreType, a, b embedding.Vector) (float64, error) {
	var (
		score     float64
		precision int
		err       error
	)
	switch t {
	case Cosine:
		score, err = CosineScore(a, b)
		precision = cosinePrecision
	case Euclidean:
		score, err = EuclideanScore(a, b)
		precision = euclideanPrecision
	default:
		return 0, domain.ErrUnsupportedScoreType.WithMessage("score type %q", string(t))
	}
	if err != nil {
		return 0, err
	}
	return Round(score, precision), nil
}

// MatchStatus reports a match iff score is strictly below threshold.
func MatchStatus(score, threshold float64) bool {
	return score < threshold
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func sameDim(a, b embedding.Vector) error {
	if a.Dim() != b.Dim() {
		return domain.ErrDimensionMismatch.WithMessage("%d vs %d components", a.Dim(), b.Dim())
	}
	if a.Dim() == 0 {
		return domain.ErrDimensionMismatch.WithMessage("empty vectors")
	}
	return nil
}
