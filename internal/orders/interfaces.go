package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
)

// Repository defines persistence operations for vendor orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateVendorOrder(ctx context.Context, order *models.VendorOrder) (*models.VendorOrder, error)
	FindVendorOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorOrder, error)
	MarkPaidAndHeld(ctx context.Context, orderID uuid.UUID, paidAt time.Time) (int64, error)
}
