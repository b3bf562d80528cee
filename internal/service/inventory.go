package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/messaging"
	"gymcore-backend/internal/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// instantSaleAttempts bounds the in-request retries on a stock version conflict.
const instantSaleAttempts = 3

type inventoryService struct {
	inventory repository.InventoryRepository
	bus       EventBus
	refs      *snowflake.Node
	now       func() time.Time
}

func NewInventoryService(
	inventory repository.InventoryRepository,
	bus EventBus,
	refs *snowflake.Node,
	now func() time.Time,
) InventoryService {
	if now == nil {
		now = time.Now
	}
	return &inventoryService{inventory: inventory, bus: bus, refs: refs, now: now}
}

func (s *inventoryService) CompleteSale(ctx context.Context, saleID, paymentRef string) (domain.SaleOutcome, error) {
	sale, outcome, err := s.inventory.CompleteSale(ctx, saleID, paymentRef, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			if ferr := s.inventory.MarkSaleFailed(ctx, saleID); ferr != nil {
				logger.ErrorContext(ctx, "Failed to mark sale as failed", "saleID", saleID, "error", ferr)
			} else {
				logger.WarnContext(ctx, "Sale failed on stock shortage", "saleID", saleID, "error", err)
			}
		}
		return "", fmt.Errorf("complete sale %s: %w", saleID, err)
	}

	if outcome == domain.SaleOutcomeSkipped {
		logger.InfoContext(ctx, "Sale already settled, skipping", "saleID", saleID, "status", sale.Status)
		return outcome, nil
	}

	s.publishSaleSettled(ctx, sale)
	logger.InfoContext(ctx, "Sale completed", "saleID", sale.ID, "total", sale.Total.String(), "items", len(sale.Items))
	return outcome, nil
}

func (s *inventoryService) CreatePendingSale(ctx context.Context, req SaleRequest) (*domain.Sale, error) {
	sale, err := s.buildSale(ctx, req)
	if err != nil {
		return nil, err
	}
	if sale.PaymentType == "" {
		sale.PaymentType = domain.PaymentMethodOnline
	}
	sale.Status = domain.SaleStatusPending

	if err := s.inventory.CreatePendingSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("create pending sale: %w", err)
	}

	logger.InfoContext(ctx, "Pending sale created", "saleID", sale.ID, "total", sale.Total.String())
	return sale, nil
}

// CreateInstantSale settles a cash or card-present sale inside the request.
// Stock goes through the same versioned decrement as CompleteSale.
func (s *inventoryService) CreateInstantSale(ctx context.Context, req SaleRequest) (*domain.Sale, error) {
	switch req.PaymentType {
	case "":
		req.PaymentType = domain.PaymentMethodCash
	case domain.PaymentMethodCash, domain.PaymentMethodCardPresent:
	default:
		return nil, fmt.Errorf("%w: instant sale paid %s", domain.ErrInvalidMethod, req.PaymentType)
	}

	var sale *domain.Sale
	for attempt := 1; ; attempt++ {
		var err error
		sale, err = s.buildSale(ctx, req)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		ref := "POS-" + s.refs.Generate().String()
		sale.Status = domain.SaleStatusCompleted
		sale.PaymentRef = &ref
		sale.CompletedAt = &now

		err = s.inventory.CreateInstantSale(ctx, sale)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) || attempt == instantSaleAttempts {
			return nil, fmt.Errorf("instant sale: %w", err)
		}
		logger.WarnContext(ctx, "Stock changed during instant sale, retrying", "attempt", attempt, "error", err)
	}

	s.publishSaleSettled(ctx, sale)
	logger.InfoContext(ctx, "Instant sale completed", "saleID", sale.ID, "paymentRef", *sale.PaymentRef)
	return sale, nil
}

// buildSale prices each line from the product row of the sale's gym.
func (s *inventoryService) buildSale(ctx context.Context, req SaleRequest) (*domain.Sale, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidQuantity
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s quantity %d", domain.ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		product, err := s.inventory.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product.GymID != req.GymID {
			return nil, fmt.Errorf("product %s not sold in gym %s: %w", line.ProductID, req.GymID, domain.ErrProductNotFound)
		}
		items = append(items, domain.SaleItem{ProductID: product.ID, Quantity: line.Quantity, UnitPrice: product.Price})
	}

	sale := &domain.Sale{
		ID:          uuid.NewString(),
		GymID:       req.GymID,
		CashierID:   req.CashierID,
		Items:       items,
		Currency:    currencyOrDefault(req.Currency),
		PaymentType: req.PaymentType,
		CreatedAt:   s.now().UTC(),
	}
	sale.Total = sale.ComputeTotal()
	return sale, nil
}

// publishSaleSettled tells the counters about a committed sale. The sale stays
// committed whatever happens here.
func (s *inventoryService) publishSaleSettled(ctx context.Context, sale *domain.Sale) {
	event := domain.SettlementEvent{
		SubjectKind:   domain.SubjectKindSale,
		SubjectID:     sale.ID,
		Amount:        sale.Total,
		Currency:      sale.Currency,
		PaymentMethod: sale.PaymentType,
		Status:        domain.PaymentStatusCompleted,
		Timestamp:     sale.CompletedAt.UTC(),
		Source:        domain.SourcePOS,
	}
	if sale.PaymentRef != nil {
		event.PaymentID = *sale.PaymentRef
	}

	if err := s.bus.Publish(ctx, domain.RoutingKeyPaymentCompleted, event, messaging.PublishOptions{}); err != nil {
		logger.ErrorContext(ctx, "Sale committed but settlement event not published", "saleID", sale.ID, "error", err)
	}
}
