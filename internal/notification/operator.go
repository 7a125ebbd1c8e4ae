package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// OperatorWebhook posts plain-text alerts to an operator chat webhook, used
// for credential-pool wraparounds and other conditions needing a human.
type OperatorWebhook struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
}

// operatorPayload is the webhook body, compatible with Slack-style hooks
type operatorPayload struct {
	Text string `json:"text"`
}

// NewOperatorWebhook creates an operator webhook sender. Returns nil when no
// URL is configured; the Manager treats a nil webhook as alerts-to-log.
func NewOperatorWebhook(url string, timeout time.Duration) *OperatorWebhook {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OperatorWebhook{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: utils.GetLogger(),
	}
}

// Send posts an alert message to the operator webhook
func (o *OperatorWebhook) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(operatorPayload{Text: message})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal operator alert", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create operator alert request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID, err := utils.GenerateID(); err == nil {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to send operator alert", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.NewAppError(utils.ErrCodeConnection,
			"Operator webhook returned non-success status",
			fmt.Sprintf("status: %d", resp.StatusCode))
	}

	o.logger.Debug("Operator alert delivered")
	return nil
}
