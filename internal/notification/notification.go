package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/metrics"
	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// Sender delivers a serialized transaction event to one realtime channel
type Sender interface {
	Name() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// ManagerConfig holds notification manager configuration
type ManagerConfig struct {
	SendTimeout time.Duration
}

// Manager fans transaction events out to the configured realtime channels and
// carries operator alerts. Delivery failures are logged, never propagated:
// a dead notification channel must not stall ingestion.
type Manager struct {
	config   *ManagerConfig
	senders  []Sender
	operator *OperatorWebhook
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// NewManager creates a notification manager
func NewManager(config *ManagerConfig, operator *OperatorWebhook, senders ...Sender) *Manager {
	return &Manager{
		config:   config,
		senders:  senders,
		operator: operator,
		logger:   utils.GetLogger(),
	}
}

// SetMetrics attaches delivery metrics
func (m *Manager) SetMetrics(mm *metrics.Metrics) {
	m.metrics = mm
}

// PublishTransaction broadcasts a new-transaction event to every channel
func (m *Manager) PublishTransaction(ctx context.Context, event *models.TransactionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.WithError(err).Error("Failed to marshal transaction event")
		return
	}

	for _, sender := range m.senders {
		sendCtx := ctx
		var cancel context.CancelFunc
		if m.config != nil && m.config.SendTimeout > 0 {
			sendCtx, cancel = context.WithTimeout(ctx, m.config.SendTimeout)
		}

		if err := sender.Send(sendCtx, payload); err != nil {
			m.logger.WithError(err).WithField("channel", sender.Name()).Warn("Failed to deliver transaction event")
		} else if m.metrics != nil {
			m.metrics.EventsPublished.WithLabelValues(sender.Name()).Inc()
		}

		if cancel != nil {
			cancel()
		}
	}
}

// AlertOperator sends an out-of-band message to the operator webhook
func (m *Manager) AlertOperator(ctx context.Context, message string) {
	if m.operator == nil {
		m.logger.WithField("message", message).Warn("Operator alert dropped, no webhook configured")
		return
	}
	if err := m.operator.Send(ctx, message); err != nil {
		m.logger.WithError(err).Error("Failed to deliver operator alert")
	}
}

// Close shuts down all notification channels
func (m *Manager) Close() error {
	var firstErr error
	for _, sender := range m.senders {
		if err := sender.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
