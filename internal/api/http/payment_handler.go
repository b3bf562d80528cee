package http

import (
	"net/http"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/service"

	"github.com/shopspring/decimal"
)

type checkoutRequest struct {
	MembershipID *string         `json:"membership_id"`
	SaleID       *string         `json:"sale_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

type checkoutResponse struct {
	Payment    *domain.Payment `json:"payment"`
	ApproveURL string          `json:"approve_url"`
}

type manualPaymentRequest struct {
	MembershipID *string              `json:"membership_id"`
	SaleID       *string              `json:"sale_id"`
	UserID       *string              `json:"user_id"`
	Amount       decimal.Decimal      `json:"amount"`
	Currency     string               `json:"currency"`
	Method       domain.PaymentMethod `json:"method"`
}

type PaymentHandler struct {
	ledger service.LedgerService
}

func NewPaymentHandler(ledger service.LedgerService) *PaymentHandler {
	return &PaymentHandler{ledger: ledger}
}

func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user id missing from token")
		return
	}

	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.ledger.CreateCheckout(r.Context(), service.CheckoutRequest{
		MembershipID: req.MembershipID,
		SaleID:       req.SaleID,
		UserID:       userID,
		Amount:       req.Amount,
		Currency:     req.Currency,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{Payment: res.Payment, ApproveURL: res.ApproveURL})
}

// Manual records a cash or card-present payment taken at the front desk.
func (h *PaymentHandler) Manual(w http.ResponseWriter, r *http.Request) {
	var req manualPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := h.ledger.CreateManualSettlement(r.Context(), service.ManualSettlementRequest{
		MembershipID: req.MembershipID,
		SaleID:       req.SaleID,
		UserID:       req.UserID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Method:       req.Method,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}
