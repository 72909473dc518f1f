package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/domain"
)

// Publisher receives every completed verification. Publish never fails from
// the caller's point of view.
type Publisher interface {
	Publish(ctx context.Context, result *domain.VerificationResult)
}

// Event is the message body sent to the monitoring subject.
type Event struct {
	EventID     string                     `json:"event_id"`
	PublishedAt time.Time                  `json:"published_at"`
	Result      *domain.VerificationResult `json:"result"`
}

// Conn is the part of *nats.Conn used for publishing.
type Conn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher sends events as JSON on a single subject.
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  *zap.Logger
	now     func() time.Time
}

func NewNATSPublisher(conn Conn, subject string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.Named("telemetry"),
		now:     time.Now,
	}
}

// Connect dials the broker. Reconnects are handled by the client library.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("face-verify"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

func (p *NATSPublisher) Publish(ctx context.Context, result *domain.VerificationResult) {
	if result == nil {
		return
	}

	body, err := json.Marshal(Event{
		EventID:     uuid.NewString(),
		PublishedAt: p.now().UTC(),
		Result:      result,
	})
	if err != nil {
		p.logger.Warn("failed to encode telemetry event", zap.String("request_id", result.RequestID), zap.Error(err))
		return
	}

	if err := p.conn.Publish(p.subject, body); err != nil {
		p.logger.Warn("failed to publish telemetry event",
			zap.String("request_id", result.RequestID),
			zap.String("subject", p.subject),
			zap.Error(err),
		)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *domain.VerificationResult) {}
