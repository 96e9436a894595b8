package payments

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/paystack"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

type outcome int

const (
	outcomeCredited outcome = iota
	outcomeDuplicate
	outcomeDeclined
	outcomeInProgress
)

// errLostRace aborts the unit of work when a concurrent reconcile already
// settled the reference.
var errLostRace = errors.New("reference settled concurrently")

// Reconcile turns a provider confirmation into exactly one wallet credit.
// A reference that was already credited returns the stored result with
// AlreadyProcessed set instead of an error.
func (s *service) Reconcile(ctx context.Context, reference string, confirmation paystack.Transaction) (*Result, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	if confirmation.Reference != "" && confirmation.Reference != reference {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation does not match reference")
	}
	ctx = s.logg.WithReference(ctx, reference)

	var (
		result  *Result
		pending *models.Transaction
		state   outcome
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.ledger.FindByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		if txn.Kind != enums.TransactionKindFund {
			return pkgerrors.New(pkgerrors.CodeValidation, "reference is not a funding transaction")
		}

		switch txn.Status {
		case enums.TransactionStatusSuccessful:
			state = outcomeDuplicate
			result, err = s.settledResult(ctx, tx, txn)
			return err
		case enums.TransactionStatusFailed:
			return pkgerrors.New(pkgerrors.CodeProcessed, "funding transaction already failed").
				WithDetails(map[string]any{"reference": reference})
		}

		if confirmation.Failed() {
			state = outcomeDeclined
			_, err := s.ledger.Complete(ctx, tx, reference, enums.TransactionStatusFailed)
			if pkgerrors.CodeOf(err) == pkgerrors.CodeProcessed {
				return errLostRace
			}
			return err
		}
		if !confirmation.Succeeded() {
			state = outcomeInProgress
			return nil
		}
		if confirmation.Amount != txn.Amount {
			return pkgerrors.New(pkgerrors.CodeValidation, "confirmed amount does not match funding amount").
				WithDetails(map[string]any{"expected": txn.Amount, "confirmed": confirmation.Amount})
		}

		if _, err := s.ledger.Complete(ctx, tx, reference, enums.TransactionStatusSuccessful); err != nil {
			if pkgerrors.CodeOf(err) == pkgerrors.CodeProcessed {
				return errLostRace
			}
			return err
		}

		role, ok := txn.InitiatorRole.AccountRole()
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "funding initiator has no wallet")
		}
		wallet, err := s.ledger.EnsureWallet(ctx, tx, txn.InitiatorID, role)
		if err != nil {
			return err
		}
		credit, err := s.ledger.Credit(ctx, tx, ledger.Entry{
			Reference:   ledger.CreditReference(reference),
			Kind:        enums.TransactionKindCredit,
			Amount:      txn.Amount,
			From:        ledger.ExternalAccount,
			To:          wallet.VirtualAccount,
			Initiator:   ledger.Party{ID: txn.InitiatorID, Role: txn.InitiatorRole},
			Description: "wallet funded",
			Metadata: types.TransactionMetadata{
				Source:         "paystack",
				ParentRef:      reference,
				ProviderStatus: confirmation.Status,
			},
		})
		if err != nil {
			if pkgerrors.CodeOf(err) == pkgerrors.CodeProcessed {
				return errLostRace
			}
			return err
		}

		state = outcomeCredited
		pending = txn
		result = &Result{
			Reference:  reference,
			WalletID:   wallet.ID,
			Amount:     txn.Amount,
			NewBalance: balanceOf(credit),
		}
		return nil
	})

	if errors.Is(err, errLostRace) {
		s.metrics.ObserveReconcile("duplicate")
		return s.loadSettled(ctx, reference)
	}
	if err != nil {
		s.metrics.ObserveReconcile("error")
		return nil, err
	}

	switch state {
	case outcomeDuplicate:
		s.metrics.ObserveReconcile("duplicate")
		s.logg.Info(ctx, "funding already reconciled")
		return result, nil
	case outcomeDeclined:
		s.metrics.ObserveReconcile("declined")
		s.logg.Warn(ctx, "provider reported unsuccessful payment")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment was not successful").
			WithDetails(map[string]any{"reference": reference, "status": confirmation.Status})
	case outcomeInProgress:
		s.metrics.ObserveReconcile("pending")
		s.logg.Info(ctx, "payment not yet settled by provider")
		return nil, pkgerrors.New(pkgerrors.CodePending, "payment is not complete yet").
			WithDetails(map[string]any{"reference": reference, "status": confirmation.Status})
	}

	s.metrics.ObserveReconcile("credited")
	s.metrics.ObservePosting(string(enums.TransactionKindCredit), result.Amount)
	s.logg.Info(ctx, "wallet funded")
	s.notifier.Notify(ctx, notifications.Request{
		RecipientID:   pending.InitiatorID,
		RecipientRole: pending.InitiatorRole,
		Type:          enums.NotificationTypeWalletFunded,
		Args: map[string]string{
			notifications.ArgAmount:    notifications.Amount(result.Amount),
			notifications.ArgReference: reference,
		},
	})
	return result, nil
}

func (s *service) loadSettled(ctx context.Context, reference string) (*Result, error) {
	var result *Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.ledger.FindByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		if txn.Status != enums.TransactionStatusSuccessful {
			return pkgerrors.New(pkgerrors.CodeProcessed, "funding transaction already processed").
				WithDetails(map[string]any{"reference": reference, "status": txn.Status})
		}
		result, err = s.settledResult(ctx, tx, txn)
		return err
	})
	return result, err
}

// settledResult rebuilds the result of an earlier successful reconcile from
// its audit credit.
func (s *service) settledResult(ctx context.Context, tx *gorm.DB, txn *models.Transaction) (*Result, error) {
	credit, err := s.ledger.FindByReference(ctx, tx, ledger.CreditReference(txn.Reference))
	if err != nil {
		return nil, err
	}
	result := &Result{
		Reference:        txn.Reference,
		Amount:           txn.Amount,
		NewBalance:       balanceOf(credit),
		AlreadyProcessed: true,
	}
	if role, ok := txn.InitiatorRole.AccountRole(); ok {
		if wallet, err := s.ledger.EnsureWallet(ctx, tx, txn.InitiatorID, role); err == nil {
			result.WalletID = wallet.ID
		}
	}
	return result, nil
}

func balanceOf(txn *models.Transaction) int64 {
	if txn == nil || txn.BalanceAfter == nil {
		return 0
	}
	return *txn.BalanceAfter
}
