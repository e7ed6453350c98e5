package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/Layr-Labs/feeinfo-go/pkg/schema"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	feeInfoPath = "/fee_info"

	defaultRequestTimeout = 10 * time.Second
	maxResponseBodyBytes  = 1 << 20
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// SubmitError is returned when the PFS rejects a fee update with a 4xx
// status. Those are never retried.
type SubmitError struct {
	StatusCode int
	Body       string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("fee update rejected with status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// SubmitResult is the PFS acknowledgement of an accepted fee update
type SubmitResult struct {
	Type   string         `json:"type"`
	Signer common.Address `json:"signer"`
	Nonce  *big.Int       `json:"nonce"`
}

// Client sends fee updates to a path-finding service
type Client struct {
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// NewClient creates a client with DefaultRetryConfig
func NewClient(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: defaultRequestTimeout},
		retryConfig: DefaultRetryConfig,
		logger:      logger,
	}
}

// WithRetryConfig replaces the retry settings
func (c *Client) WithRetryConfig(cfg RetryConfig) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	c.retryConfig = cfg
	return c
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

func buildRequestURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// SubmitFeeInfo posts a signed fee update to the PFS at baseURL. Transport
// errors and 5xx responses are retried with exponential backoff.
func (c *Client) SubmitFeeInfo(ctx context.Context, baseURL string, fi *messages.FeeInfo) (*SubmitResult, error) {
	if fi == nil {
		return nil, fmt.Errorf("fee info cannot be nil")
	}

	data, err := json.Marshal(fi)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fee info: %w", err)
	}

	target := buildRequestURL(baseURL, feeInfoPath)
	var lastErr error

	backoff := c.retryConfig.InitialBackoff
	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		result, err := c.submitOnce(ctx, target, data)
		if err == nil {
			return result, nil
		}

		var submitErr *SubmitError
		if errors.As(err, &submitErr) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		c.logger.Sugar().Debugw("Fee update submission failed",
			"url", target,
			"attempt", attempt+1,
			"error", err,
		)

		if attempt < c.retryConfig.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}
	}

	return nil, fmt.Errorf("failed to submit fee update after %d attempts: %w", c.retryConfig.MaxAttempts, lastErr)
}

func (c *Client) submitOnce(ctx context.Context, target string, data []byte) (*SubmitResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, &SubmitError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result SubmitResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &SubmitError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return &result, nil
}

// GetFeeInfo fetches the stored fee update for key. Returns nil if the PFS has none.
func (c *Client) GetFeeInfo(ctx context.Context, baseURL string, key persistence.FeeInfoKey) (*persistence.FeeInfoRecord, error) {
	if key.ChannelIdentifier == nil {
		return nil, fmt.Errorf("channel identifier is required")
	}

	query := url.Values{}
	query.Set(schema.KeyTokenNetworkAddress, key.TokenNetworkAddress.Hex())
	query.Set(schema.KeyChannelIdentifier, key.ChannelIdentifier.String())
	query.Set("signer", key.Signer.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildRequestURL(baseURL, feeInfoPath)+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SubmitError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return persistence.UnmarshalFeeInfoRecord(body)
}
