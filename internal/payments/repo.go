package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
)

// Repository persists payment intents and provider callbacks. Every status
// change goes through Transition, a compare-and-set on the current status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindOpenBySubject(ctx context.Context, subjectType enums.PaymentSubjectType, subjectID uuid.UUID) (*models.PaymentIntent, error)
	FindByProviderTransactionID(ctx context.Context, source enums.CallbackSource, providerTxID string) (*models.PaymentIntent, error)
	FindByChannelReference(ctx context.Context, reference string) (*models.PaymentIntent, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, updates map[string]any) (int64, error)
	DeleteInitiated(ctx context.Context, id uuid.UUID) (int64, error)
	TouchPolled(ctx context.Context, id uuid.UUID, at time.Time) error
	ListStale(ctx context.Context, polledBefore time.Time, limit int) ([]uuid.UUID, error)
	ListExpired(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)
	CreateCallback(ctx context.Context, cb *models.PaymentCallback) error
	UpdateCallback(ctx context.Context, id uuid.UUID, applied bool, note string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment intent repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindOpenBySubject(ctx context.Context, subjectType enums.PaymentSubjectType, subjectID uuid.UUID) (*models.PaymentIntent, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND status IN ?", subjectType, subjectID, enums.NonTerminalPaymentIntentStatuses).
		Order("created_at DESC"))
}

// FindByProviderTransactionID only matches intents whose method settles
// through the source's channel, and for card processors only that processor.
func (r *repository) FindByProviderTransactionID(ctx context.Context, source enums.CallbackSource, providerTxID string) (*models.PaymentIntent, error) {
	methods := source.ChannelClass().Methods()
	if len(methods) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("provider_transaction_id = ? AND method IN ?", providerTxID, methods)
	if processor := source.Processor(); processor != "" {
		query = query.Where("provider = ?", processor)
	}
	return r.first(ctx, query)
}

func (r *repository) FindByChannelReference(ctx context.Context, reference string) (*models.PaymentIntent, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("channel_reference = ?", reference))
}

func (r *repository) first(ctx context.Context, query *gorm.DB) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := query.First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// Transition moves the intent from -> to only while it still holds from.
// Moves into a success terminal additionally require activated_at to be
// unset so exactly one writer wins activation. It returns the number of
// rows changed; zero means another writer got there first.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.PaymentIntentStatus, updates map[string]any) (int64, error) {
	if !from.CanTransitionTo(to) {
		return 0, fmt.Errorf("illegal payment intent transition %s -> %s", from, to)
	}
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	if _, ok := values["updated_at"]; !ok {
		values["updated_at"] = time.Now().UTC()
	}

	query := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, from)
	if to.IsSuccess() {
		query = query.Where("activated_at IS NULL")
	}
	res := query.Updates(values)
	return res.RowsAffected, res.Error
}

// DeleteInitiated removes an intent no provider has acknowledged. Rows that
// already moved past initiated are kept.
func (r *repository) DeleteInitiated(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, enums.PaymentIntentStatusInitiated).
		Delete(&models.PaymentIntent{})
	return res.RowsAffected, res.Error
}

// TouchPolled records a poll without changing status. Terminal rows are left alone.
func (r *repository) TouchPolled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, enums.NonTerminalPaymentIntentStatuses).
		Updates(map[string]any{"last_polled_at": at, "updated_at": at}).Error
}

// ListStale returns awaiting intents nobody has polled since polledBefore.
func (r *repository) ListStale(ctx context.Context, polledBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("status = ?", enums.PaymentIntentStatusAwaitingConfirmation).
		Where("(last_polled_at IS NULL AND created_at < ?) OR last_polled_at < ?", polledBefore, polledBefore).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ListExpired returns non-terminal intents created before createdBefore.
func (r *repository) ListExpired(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("status IN ? AND created_at < ?", enums.NonTerminalPaymentIntentStatuses, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) CreateCallback(ctx context.Context, cb *models.PaymentCallback) error {
	if cb.ID == uuid.Nil {
		cb.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(cb).Error
}

func (r *repository) UpdateCallback(ctx context.Context, id uuid.UUID, applied bool, note string) error {
	updates := map[string]any{"applied": applied}
	if note != "" {
		updates["note"] = note
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentCallback{}).
		Where("id = ?", id).
		Updates(updates).Error
}
