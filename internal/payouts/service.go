package payouts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/pkg/cache"
	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/escrow-backend/pkg/paystack"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

const (
	defaultProviderTimeout = 15 * time.Second
	defaultCountry         = "nigeria"
	rateLimitWindow        = time.Hour
	historyLimit           = 50

	triggerProviderError = "provider_error"
	triggerWebhook       = "webhook"
)

var accountNumberPattern = regexp.MustCompile(`^[0-9]{10}$`)

// TransferGateway is the bank transfer provider surface.
type TransferGateway interface {
	CreateTransferRecipient(ctx context.Context, req paystack.RecipientRequest) (*paystack.Recipient, error)
	InitiateTransfer(ctx context.Context, req paystack.TransferRequest) (*paystack.Transfer, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*paystack.ResolvedAccount, error)
	ListBanks(ctx context.Context, country string) ([]paystack.Bank, error)
}

// RateLimiter bounds how often a seller may request payouts.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service drains seller wallets to verified bank accounts.
type Service interface {
	ListBanks(ctx context.Context) ([]paystack.Bank, error)
	RegisterBankAccount(ctx context.Context, owner ledger.Party, input BankAccountInput) (*models.BankAccount, error)
	ListBankAccounts(ctx context.Context, owner ledger.Party) ([]models.BankAccount, error)
	RequestPayout(ctx context.Context, owner ledger.Party, input PayoutInput) (*models.PayoutRequest, error)
	ListPayouts(ctx context.Context, owner ledger.Party) ([]models.PayoutRequest, error)
	HandleTransferEvent(ctx context.Context, event string, data paystack.TransferEventData) error
}

// BankAccountInput identifies an account at a bank.
type BankAccountInput struct {
	AccountNumber string
	BankCode      string
	BankName      string
}

// PayoutInput is a withdrawal instruction.
type PayoutInput struct {
	Amount        int64
	BankAccountID uuid.UUID
}

// ServiceParams groups dependencies for the payouts service.
type ServiceParams struct {
	DB        db.TxRunner
	Repo      Repository
	Ledger    ledger.Service
	Gateway   TransferGateway
	Limiter   RateLimiter
	BankCache *cache.StaleCache[[]paystack.Bank]
	Notifier  notifications.Notifier
	// Events receives payout_settled when a payout reaches a terminal state. Optional.
	Events   outbox.Emitter
	Metrics  *metrics.LedgerMetrics
	Logger   *logger.Logger
	Config   config.PayoutConfig
	Country  string
	Timeout  time.Duration
	Currency string
	Clock    func() time.Time
}

type service struct {
	db       db.TxRunner
	repo     Repository
	ledger   ledger.Service
	gateway  TransferGateway
	limiter  RateLimiter
	banks    *cache.StaleCache[[]paystack.Bank]
	notifier notifications.Notifier
	events   outbox.Emitter
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
	cfg      config.PayoutConfig
	fees     FeeSchedule
	country  string
	timeout  time.Duration
	currency string
	now      func() time.Time
}

// NewService builds the payouts service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("payouts repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Gateway == nil {
		return nil, errors.New("transfer gateway required")
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
	if params.Country == "" {
		params.Country = defaultCountry
	}
	if params.Currency == "" {
		params.Currency = "NGN"
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		ledger:   params.Ledger,
		gateway:  params.Gateway,
		limiter:  params.Limiter,
		banks:    params.BankCache,
		notifier: params.Notifier,
		events:   params.Events,
		metrics:  params.Metrics,
		logg:     params.Logger,
		cfg:      params.Config,
		fees:     FeeScheduleFromConfig(params.Config),
		country:  params.Country,
		timeout:  params.Timeout,
		currency: params.Currency,
		now:      params.Clock,
	}, nil
}

// ListBanks serves the provider's bank list, falling back to the last
// cached copy when the provider is unreachable.
func (s *service) ListBanks(ctx context.Context) ([]paystack.Bank, error) {
	load := func(ctx context.Context) ([]paystack.Bank, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.gateway.ListBanks(callCtx, s.country)
	}
	if s.banks == nil {
		banks, err := load(ctx)
		if err != nil {
			return nil, asDependency(err, "list banks")
		}
		return banks, nil
	}
	res, err := s.banks.Get(ctx, load)
	if err != nil {
		return nil, asDependency(err, "list banks")
	}
	if res.Stale {
		s.logg.Warn(ctx, "serving stale bank list")
	}
	return res.Value, nil
}

// RegisterBankAccount saves a destination account once the provider has
// resolved its holder name.
func (s *service) RegisterBankAccount(ctx context.Context, owner ledger.Party, input BankAccountInput) (*models.BankAccount, error) {
	if _, ok := enums.SellerKindFor(owner.Role); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers can register payout accounts")
	}
	number := strings.TrimSpace(input.AccountNumber)
	bankCode := strings.TrimSpace(input.BankCode)
	if !accountNumberPattern.MatchString(number) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account number must be 10 digits")
	}
	if bankCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank code is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resolved, err := s.gateway.ResolveAccount(callCtx, number, bankCode)
	if err != nil {
		return nil, asDependency(err, "resolve bank account")
	}

	account := &models.BankAccount{
		OwnerID:       owner.ID,
		AccountNumber: number,
		BankCode:      bankCode,
		BankName:      strings.TrimSpace(input.BankName),
		AccountName:   resolved.AccountName,
		Verified:      true,
	}
	if err := s.repo.CreateBankAccount(ctx, account); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "bank account already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save bank account")
	}
	return account, nil
}

func (s *service) ListBankAccounts(ctx context.Context, owner ledger.Party) ([]models.BankAccount, error) {
	accounts, err := s.repo.ListBankAccounts(ctx, owner.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list bank accounts")
	}
	return accounts, nil
}

func (s *service) ListPayouts(ctx context.Context, owner ledger.Party) ([]models.PayoutRequest, error) {
	payouts, err := s.repo.ListPayouts(ctx, owner.ID, historyLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts")
	}
	return payouts, nil
}

// RequestPayout debits the seller wallet and starts a provider transfer. The
// debit and the payout row commit together; a provider failure credits the
// wallet back and marks both failed.
func (s *service) RequestPayout(ctx context.Context, owner ledger.Party, input PayoutInput) (*models.PayoutRequest, error) {
	kind, ok := enums.SellerKindFor(owner.Role)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers can withdraw")
	}
	if input.Amount < s.cfg.MinAmount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount is below the minimum payout").
			WithDetails(map[string]any{"minimum": s.cfg.MinAmount})
	}
	fee := s.fees.FeeFor(input.Amount)
	if fee >= input.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not cover the transfer fee")
	}
	if err := s.allow(ctx, owner.ID); err != nil {
		return nil, err
	}

	payoutID := uuid.New()
	reference := ledger.ReferenceFor(ledger.PrefixPayout, payoutID)
	ctx = s.logg.WithReference(ctx, reference)

	var (
		payout  *models.PayoutRequest
		account *models.BankAccount
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		account, err = repo.FindBankAccount(ctx, input.BankAccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load bank account")
		}
		if account.OwnerID != owner.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
		}
		if !account.Verified {
			return pkgerrors.New(pkgerrors.CodeValidation, "bank account is not verified")
		}

		wallet, err := s.ledger.EnsureWallet(ctx, tx, owner.ID, kind.AccountRole())
		if err != nil {
			return err
		}
		payout = &models.PayoutRequest{
			ID:            payoutID,
			OwnerID:       owner.ID,
			OwnerRole:     kind.AccountRole(),
			BankAccountID: account.ID,
			Amount:        input.Amount,
			Fee:           fee,
			NetAmount:     input.Amount - fee,
			Status:        enums.PayoutStatusPending,
			Reference:     reference,
		}
		if err := repo.CreatePayout(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payout")
		}
		_, err = s.ledger.Debit(ctx, tx, ledger.Entry{
			Reference:   reference,
			Kind:        enums.TransactionKindWithdrawal,
			Status:      enums.TransactionStatusPending,
			Amount:      input.Amount,
			From:        wallet.VirtualAccount,
			To:          ledger.ExternalAccount,
			Initiator:   owner,
			PayoutID:    &payoutID,
			Description: "withdrawal to " + account.BankName,
			Metadata:    types.TransactionMetadata{Source: "payout"},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePosting(string(enums.TransactionKindWithdrawal), input.Amount)

	transfer, err := s.startTransfer(ctx, account, payout)
	if err != nil {
		s.logg.WarnErr(ctx, "payout transfer failed", err)
		if compErr := s.compensate(context.WithoutCancel(ctx), payout, enums.PayoutStatusFailed, reasonFor(err), triggerProviderError); compErr != nil {
			s.logg.Error(ctx, "payout compensation failed", compErr)
			return nil, compErr
		}
		return nil, asDependency(err, "initiate transfer")
	}

	updates := map[string]any{"transfer_code": transfer.TransferCode}
	rows, err := s.repo.TransitionPayout(ctx, payout.ID, []enums.PayoutStatus{enums.PayoutStatusPending}, enums.PayoutStatusProcessing, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payout processing")
	}
	if rows == 0 {
		// A webhook beat us to the row; report whatever it settled on.
		return s.reload(ctx, reference)
	}
	payout.Status = enums.PayoutStatusProcessing
	payout.TransferCode = &transfer.TransferCode

	s.logg.Info(ctx, "payout transfer initiated")
	s.notify(ctx, payout, enums.NotificationTypePayoutInitiated, "")
	return payout, nil
}

// HandleTransferEvent applies a provider transfer callback. Unknown
// references and payouts already in a terminal state are ignored.
func (s *service) HandleTransferEvent(ctx context.Context, event string, data paystack.TransferEventData) error {
	reference := strings.TrimSpace(data.Reference)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer reference is required")
	}
	ctx = s.logg.WithReference(ctx, reference)

	payout, err := s.repo.FindPayoutByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "transfer event for unknown payout")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout")
	}
	if payout.Status.IsTerminal() {
		return nil
	}

	switch event {
	case paystack.EventTransferSuccess:
		return s.complete(ctx, payout, data)
	case paystack.EventTransferFailed:
		return s.compensate(ctx, payout, enums.PayoutStatusFailed, providerReason(data), triggerWebhook)
	case paystack.EventTransferReversed:
		return s.compensate(ctx, payout, enums.PayoutStatusReversed, providerReason(data), triggerWebhook)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported transfer event").
			WithDetails(map[string]any{"event": event})
	}
}

func (s *service) allow(ctx context.Context, ownerID uuid.UUID) error {
	if s.limiter == nil || s.cfg.RequestsPerHour <= 0 {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, "payout:"+ownerID.String(), int64(s.cfg.RequestsPerHour), rateLimitWindow)
	if err != nil {
		s.logg.WarnErr(ctx, "payout rate limiter unavailable", err)
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many payout requests").
			WithDetails(map[string]any{"limit": s.cfg.RequestsPerHour, "window": rateLimitWindow.String()})
	}
	return nil
}

func (s *service) startTransfer(ctx context.Context, account *models.BankAccount, payout *models.PayoutRequest) (*paystack.Transfer, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	recipient := ""
	if account.RecipientCode != nil {
		recipient = *account.RecipientCode
	}
	if recipient == "" {
		created, err := s.gateway.CreateTransferRecipient(callCtx, paystack.RecipientRequest{
			Type:          "nuban",
			Name:          account.AccountName,
			AccountNumber: account.AccountNumber,
			BankCode:      account.BankCode,
			Currency:      s.currency,
		})
		if err != nil {
			return nil, err
		}
		recipient = created.RecipientCode
		if err := s.repo.SetRecipientCode(ctx, account.ID, recipient); err != nil {
			s.logg.WarnErr(ctx, "cache transfer recipient", err)
		}
	}

	return s.gateway.InitiateTransfer(callCtx, paystack.TransferRequest{
		Source:    "balance",
		Amount:    payout.NetAmount,
		Recipient: recipient,
		Reason:    "escrow payout",
		Reference: payout.Reference,
		Currency:  s.currency,
	})
}

// compensate fails an open payout and credits the wallet back. The status
// transition guards the credit so it lands once however many callers race.
func (s *service) compensate(ctx context.Context, payout *models.PayoutRequest, status enums.PayoutStatus, reason, trigger string) error {
	applied := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).TransitionPayout(ctx, payout.ID, enums.OpenPayoutStatuses, status, map[string]any{
			"failure_reason": reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail payout")
		}
		if rows == 0 {
			return nil
		}
		if _, err := s.ledger.Complete(ctx, tx, payout.Reference, enums.TransactionStatusFailed); err != nil && pkgerrors.CodeOf(err) != pkgerrors.CodeProcessed {
			return err
		}

		wallet, err := s.ledger.EnsureWallet(ctx, tx, payout.OwnerID, payout.OwnerRole)
		if err != nil {
			return err
		}
		payoutID := payout.ID
		_, err = s.ledger.Credit(ctx, tx, ledger.Entry{
			Reference:   ledger.ReferenceFor(ledger.PrefixReversal, payout.ID),
			Kind:        enums.TransactionKindRefund,
			Amount:      payout.Amount,
			From:        ledger.ExternalAccount,
			To:          wallet.VirtualAccount,
			Initiator:   ledger.Party{ID: payout.OwnerID, Role: enums.Role(payout.OwnerRole)},
			PayoutID:    &payoutID,
			Description: "payout reversal",
			Metadata: types.TransactionMetadata{
				Source:        "payout",
				ParentRef:     payout.Reference,
				FailureReason: reason,
			},
		})
		if err != nil {
			return err
		}
		if err := s.emitSettled(ctx, tx, payout, status, reason); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	payout.Status = status
	payout.FailureReason = &reason
	s.metrics.ObserveCompensation(trigger)
	s.metrics.ObservePosting(string(enums.TransactionKindRefund), payout.Amount)
	s.logg.Info(ctx, "payout compensated")
	s.notify(ctx, payout, enums.NotificationTypePayoutFailed, reason)
	return nil
}

func (s *service) complete(ctx context.Context, payout *models.PayoutRequest, data paystack.TransferEventData) error {
	completedAt := s.now().UTC()
	applied := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{"completed_at": completedAt}
		if data.TransferCode != "" {
			updates["transfer_code"] = data.TransferCode
		}
		rows, err := s.repo.WithTx(tx).TransitionPayout(ctx, payout.ID, enums.OpenPayoutStatuses, enums.PayoutStatusCompleted, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete payout")
		}
		if rows == 0 {
			return nil
		}
		if _, err := s.ledger.Complete(ctx, tx, payout.Reference, enums.TransactionStatusSuccessful); err != nil && pkgerrors.CodeOf(err) != pkgerrors.CodeProcessed {
			return err
		}
		if payout.Fee > 0 {
			payoutID := payout.ID
			_, err := s.ledger.Record(ctx, tx, ledger.Entry{
				Reference:   ledger.ReferenceFor(ledger.PrefixCommission, payout.ID),
				Kind:        enums.TransactionKindCommission,
				Amount:      payout.Fee,
				From:        ledger.ExternalAccount,
				To:          ledger.PlatformAccount,
				Initiator:   ledger.Party{ID: payout.OwnerID, Role: enums.Role(payout.OwnerRole)},
				PayoutID:    &payoutID,
				Description: "payout fee",
				Metadata: types.TransactionMetadata{
					Source:         "payout",
					ParentRef:      payout.Reference,
					ProviderStatus: data.Status,
				},
			})
			if err != nil && pkgerrors.CodeOf(err) != pkgerrors.CodeProcessed {
				return err
			}
		}
		if err := s.emitSettled(ctx, tx, payout, enums.PayoutStatusCompleted, ""); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	payout.Status = enums.PayoutStatusCompleted
	payout.CompletedAt = &completedAt
	if payout.Fee > 0 {
		s.metrics.ObservePosting(string(enums.TransactionKindCommission), payout.Fee)
	}
	s.logg.Info(ctx, "payout completed")
	s.notify(ctx, payout, enums.NotificationTypePayoutCompleted, "")
	return nil
}

func (s *service) emitSettled(ctx context.Context, tx *gorm.DB, payout *models.PayoutRequest, status enums.PayoutStatus, reason string) error {
	if s.events == nil {
		return nil
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:   enums.EventPayoutSettled,
		AggregateID: payout.ID,
		Actor:       &outbox.ActorRef{UserID: payout.OwnerID, Role: enums.Role(payout.OwnerRole)},
		OccurredAt:  s.now(),
		Data: payloads.PayoutSettledEvent{
			PayoutID:      payout.ID,
			OwnerID:       payout.OwnerID,
			Reference:     payout.Reference,
			Amount:        payout.Amount,
			Fee:           payout.Fee,
			Status:        status,
			FailureReason: reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payout event")
	}
	return nil
}

func (s *service) reload(ctx context.Context, reference string) (*models.PayoutRequest, error) {
	payout, err := s.repo.FindPayoutByReference(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payout")
	}
	return payout, nil
}

func (s *service) notify(ctx context.Context, payout *models.PayoutRequest, kind enums.NotificationType, reason string) {
	args := map[string]string{
		notifications.ArgAmount:    notifications.Amount(payout.NetAmount),
		notifications.ArgReference: payout.Reference,
	}
	if kind == enums.NotificationTypePayoutFailed {
		args[notifications.ArgAmount] = notifications.Amount(payout.Amount)
		args[notifications.ArgReason] = reason
	}
	s.notifier.Notify(ctx, notifications.Request{
		RecipientID:   payout.OwnerID,
		RecipientRole: enums.Role(payout.OwnerRole),
		Type:          kind,
		Args:          args,
	})
}

func providerReason(data paystack.TransferEventData) string {
	if reason := strings.TrimSpace(data.Reason); reason != "" {
		return reason
	}
	if data.Status != "" {
		return "transfer " + data.Status
	}
	return "transfer failed"
}

func reasonFor(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}

func asDependency(err error, message string) error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeDependency {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
