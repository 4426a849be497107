package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketplace-payments/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the outbound adapter for the hosted card payment gateway. It
// implements ports.GatewayClient. All amounts cross this boundary in the
// currency's minor unit.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  HTTPClient
	log         zerolog.Logger
}

// NewClient creates a gateway client.
func NewClient(baseURL, secretKey, callbackURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
	}
}

// NewClientWithHTTP creates a gateway client with a custom HTTP client.
func NewClientWithHTTP(baseURL, secretKey, callbackURL string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		httpClient:  httpClient,
		log:         log,
	}
}

type initializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"` // minor units
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize opens a hosted payment session for the given reference.
func (c *Client) Initialize(ctx context.Context, email string, amountMinor int64, reference string, metadata map[string]string) (*ports.GatewaySession, error) {
	body, err := json.Marshal(initializeRequest{
		Email:       email,
		Amount:      amountMinor,
		Reference:   reference,
		CallbackURL: c.callbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build initialize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read initialize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("reference", reference).Msg("gateway initialize rejected")
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var parsed initializeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode initialize response: %w", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("gateway rejected initialize: %s", parsed.Message)
	}

	return &ports.GatewaySession{
		AuthorizationURL: parsed.Data.AuthorizationURL,
		AccessCode:       parsed.Data.AccessCode,
		Reference:        parsed.Data.Reference,
	}, nil
}

// VerifySignature checks the webhook HMAC-SHA512 over the exact raw bytes
// received. Uses constant-time comparison to prevent timing attacks.
func (c *Client) VerifySignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
