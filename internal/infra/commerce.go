package infra

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"coinscope/pkg/utils"
)

// CommerceConfig holds the hosted-crypto-checkout provider credentials.
// Keys are supplied by the caller so test and live environments differ
// only in configuration.
type CommerceConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string // defaults to the provider's public API
	RedirectURL   string
	CancelURL     string
}

type CommerceClient struct {
	cfg  CommerceConfig
	http *http.Client
}

func NewCommerceClient(cfg CommerceConfig) *CommerceClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.commerce.coinbase.com"
	}
	return &CommerceClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type ChargeRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PricingType string            `json:"pricing_type"`
	LocalPrice  ChargeMoney       `json:"local_price"`
	Metadata    map[string]string `json:"metadata"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	CancelURL   string            `json:"cancel_url,omitempty"`
}

type ChargeMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type Charge struct {
	ID        string            `json:"id"`
	Code      string            `json:"code"`
	HostedURL string            `json:"hosted_url"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata"`
}

type CommerceEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data Charge `json:"data"`
}

type commerceWebhookBody struct {
	Event CommerceEvent `json:"event"`
}

// CreateCharge opens a fixed-price hosted checkout tagged with metadata so
// the webhook handler can reconstruct intent without a side lookup.
func (c *CommerceClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	req.PricingType = "fixed_price"
	if req.RedirectURL == "" {
		req.RedirectURL = c.cfg.RedirectURL
	}
	if req.CancelURL == "" {
		req.CancelURL = c.cfg.CancelURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-CC-Api-Key", c.cfg.APIKey)
	httpReq.Header.Set("X-CC-Version", "2018-03-22")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: charge create returned %d", utils.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("charge create returned %d", resp.StatusCode)
	}

	var out struct {
		Data Charge `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 hex signature over the raw
// body and returns the parsed event. Comparison is constant time.
func (c *CommerceClient) VerifyWebhookSignature(payload []byte, signature string) (*CommerceEvent, error) {
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return nil, utils.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(sig, want) {
		return nil, utils.ErrInvalidSignature
	}

	var body commerceWebhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return &body.Event, nil
}
