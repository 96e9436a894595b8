package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/paystack"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

const (
	defaultProviderTimeout = 15 * time.Second
	recentTransactionLimit = 20
)

// Gateway is the payment provider surface used for wallet funding.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// Service funds wallets through the payment provider and credits them
// exactly once per provider confirmation.
type Service interface {
	InitializeFunding(ctx context.Context, input FundingInput) (*FundingResult, error)
	Reconcile(ctx context.Context, reference string, confirmation paystack.Transaction) (*Result, error)
	Verify(ctx context.Context, reference string) (*Result, error)
	Wallet(ctx context.Context, owner ledger.Party) (*WalletView, error)
}

// FundingInput is a request to top up the caller's wallet.
type FundingInput struct {
	Owner  ledger.Party
	Amount int64
	Email  string
}

// FundingResult is what the client needs to complete payment.
type FundingResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

// Result describes the credit applied for a funding reference.
type Result struct {
	Reference        string    `json:"reference"`
	WalletID         uuid.UUID `json:"wallet_id"`
	Amount           int64     `json:"amount"`
	NewBalance       int64     `json:"new_balance"`
	AlreadyProcessed bool      `json:"already_processed"`
}

// WalletView is the caller's wallet and its latest transactions.
type WalletView struct {
	Wallet       *models.Wallet       `json:"wallet"`
	Transactions []models.Transaction `json:"transactions"`
}

// ServiceParams groups dependencies for the payments service.
type ServiceParams struct {
	DB          db.TxRunner
	Ledger      ledger.Service
	Gateway     Gateway
	Notifier    notifications.Notifier
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Timeout     time.Duration
	CallbackURL string
	Currency    string
}

type service struct {
	db          db.TxRunner
	ledger      ledger.Service
	gateway     Gateway
	notifier    notifications.Notifier
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	timeout     time.Duration
	callbackURL string
	currency    string
}

// NewService builds the payments service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Timeout <= 0 {
		params.Timeout = defaultProviderTimeout
	}
	if params.Currency == "" {
		params.Currency = "NGN"
	}
	return &service{
		db:          params.DB,
		ledger:      params.Ledger,
		gateway:     params.Gateway,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
		timeout:     params.Timeout,
		callbackURL: params.CallbackURL,
		currency:    params.Currency,
	}, nil
}

func (s *service) InitializeFunding(ctx context.Context, input FundingInput) (*FundingResult, error) {
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	role, ok := input.Owner.Role.AccountRole()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role has no wallet")
	}

	reference := ledger.NewReference(ledger.PrefixFunding)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.ledger.EnsureWallet(ctx, tx, input.Owner.ID, role)
		if err != nil {
			return err
		}
		_, err = s.ledger.Record(ctx, tx, ledger.Entry{
			Reference:   reference,
			Kind:        enums.TransactionKindFund,
			Status:      enums.TransactionStatusPending,
			Amount:      input.Amount,
			From:        ledger.ExternalAccount,
			To:          wallet.VirtualAccount,
			Initiator:   input.Owner,
			Description: "wallet funding",
			Metadata:    types.TransactionMetadata{Source: "paystack"},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithReference(ctx, reference)
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.gateway.InitializeTransaction(callCtx, paystack.InitializeRequest{
		Email:       input.Email,
		Amount:      input.Amount,
		Reference:   reference,
		Currency:    s.currency,
		CallbackURL: s.callbackURL,
		Metadata:    map[string]string{"owner_id": input.Owner.ID.String(), "role": input.Owner.Role.String()},
	})
	if err != nil {
		if _, failErr := s.ledger.Complete(ctx, nil, reference, enums.TransactionStatusFailed); failErr != nil {
			s.logg.WarnErr(ctx, "mark funding failed", failErr)
		}
		return nil, asDependency(err, "initialize payment")
	}

	s.logg.Info(ctx, "wallet funding initialized")
	return &FundingResult{
		Reference:        reference,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
	}, nil
}

func (s *service) Verify(ctx context.Context, reference string) (*Result, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	confirmation, err := s.gateway.VerifyTransaction(callCtx, reference)
	if err != nil {
		return nil, asDependency(err, "verify payment")
	}
	return s.Reconcile(ctx, reference, *confirmation)
}

func (s *service) Wallet(ctx context.Context, owner ledger.Party) (*WalletView, error) {
	role, ok := owner.Role.AccountRole()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role has no wallet")
	}
	wallet, err := s.ledger.EnsureWallet(ctx, nil, owner.ID, role)
	if err != nil {
		return nil, err
	}
	txns, err := s.ledger.ListForAccount(ctx, wallet.VirtualAccount, recentTransactionLimit)
	if err != nil {
		return nil, err
	}
	return &WalletView{Wallet: wallet, Transactions: txns}, nil
}

func asDependency(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeDependency {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
