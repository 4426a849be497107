package shipping

import (
	"bytes"
	"context"
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

// Client is the outbound adapter for the shipping carrier. It implements
// ports.ShippingClient. Carrier failures are isolated from payment state by
// the outbox; this client only reports them.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewClient creates a carrier client.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// NewClientWithHTTP creates a carrier client with a custom HTTP client.
func NewClientWithHTTP(baseURL, apiKey string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient, log: log}
}

type createShipmentRequest struct {
	Reference   string `json:"reference"`
	OrderID     string `json:"order_id"`
	Description string `json:"description"`
	Service     string `json:"service,omitempty"`
	Recipient   struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Line1   string `json:"line1"`
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"recipient"`
}

type createShipmentResponse struct {
	Status bool   `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		ShipmentID   string `json:"shipment_id"`
		TrackingCode string `json:"tracking_code"`
		TrackingURL  string `json:"tracking_url"`
	} `json:"data"`
}

// CreateShipment books a carrier shipment for a paid order.
func (c *Client) CreateShipment(ctx context.Context, req ports.ShipmentRequest) (*ports.ShipmentInfo, error) {
	payload := createShipmentRequest{
		Reference:   req.Reference,
		OrderID:     req.OrderID.String(),
		Description: req.Description,
		Service:     req.Service,
	}
	payload.Recipient.Name = req.To.Name
	payload.Recipient.Phone = req.To.Phone
	payload.Recipient.Line1 = req.To.Line1
	payload.Recipient.City = req.To.City
	payload.Recipient.State = req.To.State
	payload.Recipient.Country = req.To.Country

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal shipment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build shipment request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create shipment: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read shipment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}

	var parsed createShipmentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode shipment response: %w", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("carrier rejected shipment: %s", parsed.Msg)
	}

	return &ports.ShipmentInfo{
		ShipmentID:   parsed.Data.ShipmentID,
		TrackingCode: parsed.Data.TrackingCode,
		TrackingURL:  parsed.Data.TrackingURL,
	}, nil
}
