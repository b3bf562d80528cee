package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDING"
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusFailed    SaleStatus = "FAILED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// Product is a stock row. Every stock change bumps Version.
type Product struct {
	ID        string          `json:"id"`
	GymID     string          `json:"gym_id"`
	Name      string          `json:"name"`
	Barcode   string          `json:"barcode"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Version   int             `json:"version"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty"`
}

type SaleItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i SaleItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Sale struct {
	ID          string          `json:"id"`
	GymID       string          `json:"gym_id"`
	CashierID   string          `json:"cashier_id"`
	Items       []SaleItem      `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	PaymentType PaymentMethod   `json:"payment_type"`
	Status      SaleStatus      `json:"status"`
	PaymentRef  *string         `json:"payment_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (s *Sale) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// SaleOutcome reports what a completion trigger did to a sale.
type SaleOutcome string

const (
	SaleOutcomeCompleted SaleOutcome = "completed"
	SaleOutcomeSkipped   SaleOutcome = "skipped"
)
