package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

// Party identifies who initiated a ledger movement.
type Party struct {
	ID   uuid.UUID
	Role enums.Role
}

// ActorRef converts the party for outbox envelopes. System parties have no
// actor.
func (p Party) ActorRef() *outbox.ActorRef {
	if p.ID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: p.ID, Role: p.Role}
}

// Entry describes one ledger transaction. Credit moves money into the wallet
// named by To, Debit out of the wallet named by From.
type Entry struct {
	Reference   string
	Kind        enums.TransactionKind
	Status      enums.TransactionStatus
	Amount      int64
	From        string
	To          string
	Initiator   Party
	OrderID     *uuid.UUID
	DisputeID   *uuid.UUID
	PayoutID    *uuid.UUID
	Description string
	Metadata    types.TransactionMetadata
}

// Service is the ledger store. Every mutating method takes the caller's
// transaction so balance changes commit or roll back together with the
// business state around them; a nil tx runs against the base connection.
type Service interface {
	EnsureWallet(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, role enums.AccountRole) (*models.Wallet, error)
	GetWallet(ctx context.Context, ownerID uuid.UUID, role enums.AccountRole) (*models.Wallet, error)
	Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	Complete(ctx context.Context, tx *gorm.DB, reference string, status enums.TransactionStatus) (*models.Transaction, error)
	FindByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.Transaction, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	ListForAccount(ctx context.Context, account string, limit int) ([]models.Transaction, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) EnsureWallet(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, role enums.AccountRole) (*models.Wallet, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet owner is required")
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet role")
	}
	repo := s.repo.WithTx(tx)

	wallet, err := repo.FindWallet(ctx, ownerID, role)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}

	if err := repo.InsertWalletIfAbsent(ctx, &models.Wallet{
		OwnerID:        ownerID,
		Role:           role,
		VirtualAccount: NewVirtualAccount(),
		Currency:       "NGN",
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create wallet")
	}

	wallet, err = repo.FindWallet(ctx, ownerID, role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload wallet")
	}
	return wallet, nil
}

func (s *service) GetWallet(ctx context.Context, ownerID uuid.UUID, role enums.AccountRole) (*models.Wallet, error) {
	wallet, err := s.repo.FindWallet(ctx, ownerID, role)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.To) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit requires a destination account")
	}
	repo := s.repo.WithTx(tx)

	rows, err := repo.IncrementBalance(ctx, entry.To, entry.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit wallet")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found").
			WithDetails(map[string]any{"account": entry.To})
	}
	return s.recordWithBalance(ctx, repo, entry, entry.To)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.From) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit requires a source account")
	}
	repo := s.repo.WithTx(tx)

	rows, err := repo.DecrementBalanceIfSufficient(ctx, entry.From, entry.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit wallet")
	}
	if rows == 0 {
		wallet, findErr := repo.FindWalletByAccount(ctx, entry.From)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found").
					WithDetails(map[string]any{"account": entry.From})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load wallet")
		}
		return nil, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient wallet balance").
			WithDetails(map[string]any{"available": wallet.Balance, "required": entry.Amount})
	}
	return s.recordWithBalance(ctx, repo, entry, entry.From)
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	txn := buildTransaction(entry, nil)
	if err := s.create(ctx, s.repo.WithTx(tx), txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Complete moves a pending transaction to a terminal status exactly once.
// A transaction that already left pending yields CodeProcessed.
func (s *service) Complete(ctx context.Context, tx *gorm.DB, reference string, status enums.TransactionStatus) (*models.Transaction, error) {
	if !status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transactions can only complete to a terminal status")
	}
	repo := s.repo.WithTx(tx)

	rows, err := repo.TransitionTransaction(ctx, reference, enums.TransactionStatusPending, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete transaction")
	}
	txn, err := s.findByReference(ctx, repo, reference)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return txn, pkgerrors.New(pkgerrors.CodeProcessed, "transaction already processed").
			WithDetails(map[string]any{"reference": reference, "status": txn.Status})
	}
	return txn, nil
}

func (s *service) FindByReference(ctx context.Context, tx *gorm.DB, reference string) (*models.Transaction, error) {
	return s.findByReference(ctx, s.repo.WithTx(tx), reference)
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	txns, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order transactions")
	}
	return txns, nil
}

func (s *service) ListForAccount(ctx context.Context, account string, limit int) ([]models.Transaction, error) {
	txns, err := s.repo.ListByAccount(ctx, account, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list wallet transactions")
	}
	return txns, nil
}

func (s *service) findByReference(ctx context.Context, repo Repository, reference string) (*models.Transaction, error) {
	txn, err := repo.FindTransactionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
				WithDetails(map[string]any{"reference": reference})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	return txn, nil
}

func (s *service) recordWithBalance(ctx context.Context, repo Repository, entry Entry, account string) (*models.Transaction, error) {
	wallet, err := repo.FindWalletByAccount(ctx, account)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload wallet")
	}
	balance := wallet.Balance
	txn := buildTransaction(entry, &balance)
	if err := s.create(ctx, repo, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) create(ctx context.Context, repo Repository, txn *models.Transaction) error {
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, "reference") {
			return pkgerrors.Wrap(pkgerrors.CodeProcessed, err, "transaction reference already applied").
				WithDetails(map[string]any{"reference": txn.Reference})
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record transaction")
	}
	return nil
}

func validateEntry(entry Entry) error {
	switch {
	case strings.TrimSpace(entry.Reference) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	case entry.Amount <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	case !entry.Kind.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction kind")
	case entry.Status != "" && !entry.Status.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction status")
	case entry.Initiator.ID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction initiator is required")
	}
	return nil
}

func buildTransaction(entry Entry, balanceAfter *int64) *models.Transaction {
	status := entry.Status
	if status == "" {
		status = enums.TransactionStatusSuccessful
	}
	return &models.Transaction{
		Reference:     entry.Reference,
		Kind:          entry.Kind,
		Status:        status,
		Amount:        entry.Amount,
		Currency:      "NGN",
		FromAccount:   optional(entry.From),
		ToAccount:     optional(entry.To),
		InitiatorID:   entry.Initiator.ID,
		InitiatorRole: entry.Initiator.Role,
		OrderID:       entry.OrderID,
		DisputeID:     entry.DisputeID,
		PayoutID:      entry.PayoutID,
		BalanceAfter:  balanceAfter,
		Description:   entry.Description,
		Metadata:      entry.Metadata,
	}
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
