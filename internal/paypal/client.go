package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gymcore-backend/internal/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const serviceName = "paypal"

// ErrNoApproveLink is returned when a created order carries no buyer approval link.
var ErrNoApproveLink = errors.New("paypal order has no approve link")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal api returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client talks to the PayPal REST API. Access tokens are fetched with the
// client-credentials grant and cached until they expire.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	base := &http.Client{Timeout: cfg.Timeout}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	authed := cc.Client(ctx)
	authed.Timeout = cfg.Timeout

	return &Client{baseURL: baseURL, http: authed}
}

// VerifyRequest holds the transmission headers plus the raw webhook body.
type VerifyRequest struct {
	AuthAlgo         string `json:"auth_algo"`
	CertURL          string `json:"cert_url"`
	TransmissionID   string `json:"transmission_id"`
	TransmissionSig  string `json:"transmission_sig"`
	TransmissionTime string `json:"transmission_time"`
	WebhookID        string `json:"webhook_id"`
	Event            []byte `json:"-"`
}

// verifyBody embeds the event bytes untouched. json.RawMessage would be
// compacted by the encoder and the signature covers the exact bytes received.
func (r VerifyRequest) verifyBody() ([]byte, error) {
	head, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	event := bytes.TrimSpace(r.Event)
	if len(event) == 0 {
		return nil, errors.New("empty webhook event")
	}

	var buf bytes.Buffer
	buf.Grow(len(head) + len(event) + 20)
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"webhook_event":`)
	buf.Write(event)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks the provider whether the transmission is authentic.
func (c *Client) VerifyWebhookSignature(ctx context.Context, req VerifyRequest) (bool, error) {
	logger.ExternalServiceCall(serviceName, "VerifyWebhookSignature", "transmissionID", req.TransmissionID)

	body, err := req.verifyBody()
	if err != nil {
		logger.ExternalServiceResult(serviceName, "VerifyWebhookSignature", err)
		return false, fmt.Errorf("build verify request: %w", err)
	}

	var out verifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", body, &out); err != nil {
		logger.ExternalServiceResult(serviceName, "VerifyWebhookSignature", err)
		return false, err
	}

	ok := out.VerificationStatus == "SUCCESS"
	logger.ExternalServiceResult(serviceName, "VerifyWebhookSignature", nil, "status", out.VerificationStatus)
	return ok, nil
}

type OrderRequest struct {
	ReferenceID string
	Amount      string
	Currency    string
	ReturnURL   string
	CancelURL   string
}

type Order struct {
	ID         string
	Status     string
	ApproveURL string
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string      `json:"reference_id"`
	CustomID    string      `json:"custom_id"`
	Amount      orderAmount `json:"amount"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type createOrderBody struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

// CreateOrder opens a CAPTURE order. The reference id comes back on webhooks as custom_id.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	logger.ExternalServiceCall(serviceName, "CreateOrder", "referenceID", req.ReferenceID, "amount", req.Amount)

	body, err := json.Marshal(createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.ReferenceID,
			CustomID:    req.ReferenceID,
			Amount:      orderAmount{CurrencyCode: req.Currency, Value: req.Amount},
		}},
		ApplicationContext: applicationContext{ReturnURL: req.ReturnURL, CancelURL: req.CancelURL},
	})
	if err != nil {
		return nil, err
	}

	var out createOrderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		logger.ExternalServiceResult(serviceName, "CreateOrder", err)
		return nil, err
	}

	order := &Order{ID: out.ID, Status: out.Status}
	for _, l := range out.Links {
		if l.Rel == "approve" {
			order.ApproveURL = l.Href
			break
		}
	}
	if order.ApproveURL == "" {
		logger.ExternalServiceResult(serviceName, "CreateOrder", ErrNoApproveLink, "orderID", out.ID)
		return nil, ErrNoApproveLink
	}

	logger.ExternalServiceResult(serviceName, "CreateOrder", nil, "orderID", out.ID)
	return order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read paypal response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode paypal response: %w", err)
	}
	return nil
}
