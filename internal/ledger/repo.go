package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// Repository manages persistence for wallets and ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindWallet(ctx context.Context, ownerID uuid.UUID, role enums.AccountRole) (*models.Wallet, error)
	FindWalletByAccount(ctx context.Context, account string) (*models.Wallet, error)
	InsertWalletIfAbsent(ctx context.Context, wallet *models.Wallet) error
	IncrementBalance(ctx context.Context, account string, amount int64) (int64, error)
	DecrementBalanceIfSufficient(ctx context.Context, account string, amount int64) (int64, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	TransitionTransaction(ctx context.Context, reference string, from, to enums.TransactionStatus) (int64, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	ListByAccount(ctx context.Context, account string, limit int) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindWallet(ctx context.Context, ownerID uuid.UUID, role enums.AccountRole) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND role = ?", ownerID, role).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindWalletByAccount(ctx context.Context, account string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Where("virtual_account = ?", account).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// InsertWalletIfAbsent inserts the wallet unless one already exists for the
// same owner and role; a concurrent creator wins silently.
func (r *repository) InsertWalletIfAbsent(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "role"}},
			DoNothing: true,
		}).
		Create(wallet).Error
}

func (r *repository) IncrementBalance(ctx context.Context, account string, amount int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("virtual_account = ?", account).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DecrementBalanceIfSufficient debits only when the balance covers amount at
// the moment of the write.
func (r *repository) DecrementBalanceIfSufficient(ctx context.Context, account string, amount int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("virtual_account = ? AND balance >= ?", account, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) TransitionTransaction(ctx context.Context, reference string, from, to enums.TransactionStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("reference = ? AND status = ?", reference, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListByAccount(ctx context.Context, account string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var txns []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("from_account = ? OR to_account = ?", account, account).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
