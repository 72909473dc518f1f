package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/face-verify/internal/domain"
)

type stubConn struct {
	subject string
	data    []byte
	err     error
}

func (s *stubConn) Publish(subj string, data []byte) error {
	s.subject = subj
	s.data = data
	return s.err
}

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &stubConn{}
	p := NewNATSPublisher(conn, "facematch.monitoring", zap.NewNop())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	p.Publish(context.Background(), &domain.VerificationResult{RequestID: "req-1", MatchStatus: 1, Score: 0.12, ScoreType: "cosine"})

	assert.Equal(t, "facematch.monitoring", conn.subject)
	var event Event
	require.NoError(t, json.Unmarshal(conn.data, &event))
	assert.NotEmpty(t, event.EventID)
	assert.True(t, fixed.Equal(event.PublishedAt))
	assert.Equal(t, "req-1", event.Result.RequestID)
	assert.Equal(t, 0.12, event.Result.Score)
}

func TestNATSPublisher_SwallowsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := NewNATSPublisher(&stubConn{err: errors.New("nats: connection closed")}, "facematch.monitoring", zap.New(core))

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), &domain.VerificationResult{RequestID: "req-2"})
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-2", logs.All()[0].ContextMap()["request_id"])
}

func TestNATSPublisher_IgnoresNilResult(t *testing.T) {
	conn := &stubConn{}
	NewNATSPublisher(conn, "s", zap.NewNop()).Publish(context.Background(), nil)
	assert.Nil(t, conn.data)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NotPanics(t, func() { p.Publish(context.Background(), &domain.VerificationResult{}) })
}
