package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/internal/ledger"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox"
	"github.com/angelmondragon/sokolink-backend/pkg/outbox/payloads"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderTotal is the payable view of a vendor order.
type OrderTotal struct {
	OrderID       uuid.UUID
	BuyerID       uuid.UUID
	VendorID      uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	PaymentStatus enums.PaymentStatus
}

// Service exposes the order operations the payment engine depends on.
type Service interface {
	GetOrderTotal(ctx context.Context, orderID uuid.UUID) (*OrderTotal, error)
	MarkOrderPaidAndEscrowed(ctx context.Context, tx *gorm.DB, orderID, intentID uuid.UUID) error
}

type service struct {
	repo   Repository
	ledger ledger.Service
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds a vendor order service with the required dependencies.
func NewService(repo Repository, ledgerSvc ledger.Service, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		ledger: ledgerSvc,
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) GetOrderTotal(ctx context.Context, orderID uuid.UUID) (*OrderTotal, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindVendorOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return &OrderTotal{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		VendorID:      order.VendorID,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		PaymentStatus: order.PaymentStatus,
	}, nil
}

// MarkOrderPaidAndEscrowed records the payment on the order inside tx: the
// order becomes paid with escrow held, an escrow_hold ledger event is written
// and order.paid is emitted. Escrow release happens elsewhere.
func (s *service) MarkOrderPaidAndEscrowed(ctx context.Context, tx *gorm.DB, orderID, intentID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindVendorOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor order")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeActivation, "order not found").
			WithDetails(map[string]any{"order_id": orderID})
	}

	paidAt := s.now()
	updated, err := repo.MarkPaidAndHeld(ctx, order.ID, paidAt)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if updated == 0 {
		return pkgerrors.New(pkgerrors.CodeActivation, "order is not awaiting payment").
			WithDetails(map[string]any{"order_id": order.ID, "payment_status": order.PaymentStatus})
	}

	metadata, err := json.Marshal(map[string]any{
		"buyer_id":  order.BuyerID,
		"vendor_id": order.VendorID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
	}
	if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
		OrderID:         order.ID,
		PaymentIntentID: &intentID,
		Type:            enums.LedgerEventTypeEscrowHold,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Metadata:        metadata,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record escrow hold")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateVendorOrder,
		AggregateID:   order.ID,
		OccurredAt:    paidAt,
		Data: payloads.OrderPaidEvent{
			OrderID:         order.ID,
			BuyerID:         order.BuyerID,
			VendorID:        order.VendorID,
			PaymentIntentID: intentID,
			Amount:          order.TotalAmount,
			Currency:        order.Currency,
			PaidAt:          paidAt,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
	}
	return nil
}
