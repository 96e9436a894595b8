package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// Repository persists bank accounts and payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBankAccount(ctx context.Context, account *models.BankAccount) error
	FindBankAccount(ctx context.Context, id uuid.UUID) (*models.BankAccount, error)
	ListBankAccounts(ctx context.Context, ownerID uuid.UUID) ([]models.BankAccount, error)
	SetRecipientCode(ctx context.Context, id uuid.UUID, code string) error
	CreatePayout(ctx context.Context, payout *models.PayoutRequest) error
	FindPayoutByReference(ctx context.Context, reference string) (*models.PayoutRequest, error)
	ListPayouts(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.PayoutRequest, error)
	TransitionPayout(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the payouts repository to the provided DB handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBankAccount(ctx context.Context, account *models.BankAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindBankAccount(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) ListBankAccounts(ctx context.Context, ownerID uuid.UUID) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) SetRecipientCode(ctx context.Context, id uuid.UUID, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("id = ?", id).
		Update("recipient_code", code).Error
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.PayoutRequest) error {
	return r.db.WithContext(ctx).Omit("BankAccount").Create(payout).Error
}

func (r *repository) FindPayoutByReference(ctx context.Context, reference string) (*models.PayoutRequest, error) {
	var payout models.PayoutRequest
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) ListPayouts(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.PayoutRequest, error) {
	var payouts []models.PayoutRequest
	err := r.db.WithContext(ctx).
		Preload("BankAccount").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// TransitionPayout moves a payout to `to` only while its status is one of
// `from`.
func (r *repository) TransitionPayout(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (int64, error) {
	columns := map[string]any{"status": to}
	for key, value := range updates {
		columns[key] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(columns)
	return res.RowsAffected, res.Error
}
