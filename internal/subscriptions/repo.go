package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// Repository persists subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindIncomplete(ctx context.Context, ownerID uuid.UUID, planID string) (*models.Subscription, error)
	FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error)
	Activate(ctx context.Context, id uuid.UUID, periodStart, periodEnd, at time.Time) (int64, error)
	SupersedeActive(ctx context.Context, ownerID, keepID uuid.UUID, at time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindIncomplete(ctx context.Context, ownerID uuid.UUID, planID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND plan_id = ? AND status = ?", ownerID, planID, enums.SubscriptionStatusIncomplete).
		Order("created_at DESC").
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, enums.SubscriptionStatusActive).
		Order("activated_at DESC").
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Activate moves a not-yet-active subscription to active. It returns the
// number of rows changed so callers can detect a missing or already active row.
func (r *repository) Activate(ctx context.Context, id uuid.UUID, periodStart, periodEnd, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", id, []enums.SubscriptionStatus{enums.SubscriptionStatusIncomplete, enums.SubscriptionStatusPastDue}).
		Updates(map[string]any{
			"status":               enums.SubscriptionStatusActive,
			"current_period_start": periodStart,
			"current_period_end":   periodEnd,
			"activated_at":         at,
			"updated_at":           at,
		})
	return res.RowsAffected, res.Error
}

// SupersedeActive cancels every other active subscription of the owner and
// points them at keepID.
func (r *repository) SupersedeActive(ctx context.Context, ownerID, keepID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("owner_id = ? AND status = ? AND id <> ?", ownerID, enums.SubscriptionStatusActive, keepID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":        enums.SubscriptionStatusCanceled,
			"canceled_at":   at,
			"superseded_by": keepID,
			"updated_at":    at,
		}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
