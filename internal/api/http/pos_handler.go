package http

import (
	"net/http"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/service"
)

type saleLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type saleRequest struct {
	GymID       string               `json:"gym_id"`
	Items       []saleLine           `json:"items"`
	Currency    string               `json:"currency"`
	PaymentType domain.PaymentMethod `json:"payment_type"`
}

type POSHandler struct {
	inventory service.InventoryService
}

func NewPOSHandler(inventory service.InventoryService) *POSHandler {
	return &POSHandler{inventory: inventory}
}

// InstantSale settles a cash or card-present sale in one transaction.
func (h *POSHandler) InstantSale(w http.ResponseWriter, r *http.Request) {
	req, ok := h.saleRequest(w, r)
	if !ok {
		return
	}
	sale, err := h.inventory.CreateInstantSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// PendingSale records a sale that is paid later through checkout.
func (h *POSHandler) PendingSale(w http.ResponseWriter, r *http.Request) {
	req, ok := h.saleRequest(w, r)
	if !ok {
		return
	}
	sale, err := h.inventory.CreatePendingSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// saleRequest decodes the body and scopes it to the cashier's gym.
func (h *POSHandler) saleRequest(w http.ResponseWriter, r *http.Request) (service.SaleRequest, bool) {
	var body saleRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return service.SaleRequest{}, false
	}

	claims, _ := ClaimsFromContext(r.Context())
	gymID := body.GymID
	if claims != nil && claims.GymID != "" {
		if gymID != "" && gymID != claims.GymID {
			writeError(w, http.StatusForbidden, "sale is outside the cashier's gym")
			return service.SaleRequest{}, false
		}
		gymID = claims.GymID
	}
	if gymID == "" {
		writeError(w, http.StatusBadRequest, "gym_id is required")
		return service.SaleRequest{}, false
	}

	req := service.SaleRequest{
		GymID:       gymID,
		Items:       make([]service.SaleLine, len(body.Items)),
		Currency:    body.Currency,
		PaymentType: body.PaymentType,
	}
	if claims != nil {
		req.CashierID = claims.UserID
	}
	for i, line := range body.Items {
		req.Items[i] = service.SaleLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return req, true
}
