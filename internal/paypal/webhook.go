package paypal

import (
	"encoding/json"
	"net/http"
	"time"
)

// Transmission headers sent with every webhook.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
)

// Settlement event types.
const (
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

// VerifyRequestFromHeaders collects the transmission headers. It reports false
// when any of them is missing.
func VerifyRequestFromHeaders(h http.Header, webhookID string, raw []byte) (VerifyRequest, bool) {
	req := VerifyRequest{
		AuthAlgo:         h.Get(HeaderAuthAlgo),
		CertURL:          h.Get(HeaderCertURL),
		TransmissionID:   h.Get(HeaderTransmissionID),
		TransmissionSig:  h.Get(HeaderTransmissionSig),
		TransmissionTime: h.Get(HeaderTransmissionTime),
		WebhookID:        webhookID,
		Event:            raw,
	}
	ok := req.AuthAlgo != "" && req.CertURL != "" && req.TransmissionID != "" &&
		req.TransmissionSig != "" && req.TransmissionTime != ""
	return req, ok
}

// TransmissionTime parses the transmission timestamp header.
func TransmissionTime(h http.Header) (time.Time, bool) {
	v := h.Get(HeaderTransmissionTime)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WebhookEvent is the envelope of a webhook notification.
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type eventResource struct {
	ID                string `json:"id"`
	CustomID          string `json:"custom_id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var e WebhookEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// IsSettlement reports whether the event confirms a payment.
func (e *WebhookEvent) IsSettlement() bool {
	return e.EventType == EventOrderApproved || e.EventType == EventCaptureCompleted
}

// OrderID returns the order the event refers to. Capture events carry it under
// supplementary_data; everything else uses the resource id.
func (e *WebhookEvent) OrderID() string {
	var r eventResource
	if len(e.Resource) == 0 || json.Unmarshal(e.Resource, &r) != nil {
		return ""
	}
	if e.EventType == EventCaptureCompleted && r.SupplementaryData.RelatedIDs.OrderID != "" {
		return r.SupplementaryData.RelatedIDs.OrderID
	}
	return r.ID
}
