package paystackwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelmondragon/escrow-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/paystack"
)

type reconciler interface {
	Reconcile(ctx context.Context, reference string, confirmation paystack.Transaction) (*payments.Result, error)
}

type transferHandler interface {
	HandleTransferEvent(ctx context.Context, event string, data paystack.TransferEventData) error
}

type ServiceParams struct {
	Payments reconciler
	Payouts  transferHandler
	Logger   *logger.Logger
}

// Service routes verified Paystack events to the payment reconciler and the
// payout pipeline.
type Service struct {
	payments reconciler
	payouts  transferHandler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, errors.New("payments reconciler required")
	}
	if params.Payouts == nil {
		return nil, errors.New("payout handler required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		payments: params.Payments,
		payouts:  params.Payouts,
		logg:     params.Logger,
	}, nil
}

// EventKey identifies one delivery. Paystack events carry no id of their
// own, so the event type and the reference it concerns stand in for one.
func EventKey(event, reference string) string {
	return strings.TrimSpace(event) + ":" + strings.TrimSpace(reference)
}

// Reference extracts the reference an event concerns, for idempotency keys.
func Reference(event paystack.Event) string {
	var data struct {
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return ""
	}
	return data.Reference
}

// HandleEvent applies one event. Event types the platform does not act on
// are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event paystack.Event) error {
	if len(event.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "paystack event data required")
	}

	switch event.Event {
	case paystack.EventChargeSuccess:
		var charge paystack.Transaction
		if err := json.Unmarshal(event.Data, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		ctx = s.logg.WithReference(ctx, charge.Reference)
		_, err := s.payments.Reconcile(ctx, charge.Reference, charge)
		return err
	case paystack.EventTransferSuccess, paystack.EventTransferFailed, paystack.EventTransferReversed:
		var transfer paystack.TransferEventData
		if err := json.Unmarshal(event.Data, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer event")
		}
		return s.payouts.HandleTransferEvent(ctx, event.Event, transfer)
	default:
		s.logg.Info(s.logg.WithField(ctx, "event", event.Event), "ignoring paystack event")
		return nil
	}
}
