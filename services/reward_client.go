// services/reward_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DistributionResult is what the reward collaborator reports for one transfer attempt
type DistributionResult struct {
	Success bool   `json:"success"`
	TxID    string `json:"txId"`
	Error   string `json:"error,omitempty"`
}

// RewardDistributor performs the irreversible on-chain reward transfer. A returned error or
// Success=false both mean nothing should be recorded as claimed.
type RewardDistributor interface {
	DistributeReward(ctx context.Context, wallet string, approve bool) (DistributionResult, error)
}

// HTTPRewardDistributor calls a contract service that owns the signing key
type HTTPRewardDistributor struct {
	BaseURL string
	Token   string
	Client  *http.Client
	log     *zap.Logger
}

func NewHTTPRewardDistributor(baseURL, token string, timeout time.Duration, log *zap.Logger) *HTTPRewardDistributor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPRewardDistributor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client: &http.Client{
			Timeout: timeout,
		},
		log: log.Named("reward_http"),
	}
}

// DistributeReward posts to /rewards/distribute on the contract service
func (c *HTTPRewardDistributor) DistributeReward(ctx context.Context, wallet string, approve bool) (DistributionResult, error) {
	url := fmt.Sprintf("%s/rewards/distribute", c.BaseURL)

	jsonData, err := json.Marshal(map[string]interface{}{
		"walletAddress": wallet,
		"approve":       approve,
	})
	if err != nil {
		return DistributionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return DistributionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return DistributionResult{}, fmt.Errorf("reward service request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return DistributionResult{}, fmt.Errorf("read reward service response: %w", err)
	}

	var out DistributionResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode < 300 {
			return DistributionResult{}, fmt.Errorf("decode reward service response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		c.log.Warn("reward service returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.String("wallet", wallet),
			zap.ByteString("body", body),
		)
		if out.Error == "" {
			out.Error = fmt.Sprintf("reward service returned %d", resp.StatusCode)
		}
		out.Success = false
		out.TxID = ""
	}

	return out, nil
}
