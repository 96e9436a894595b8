package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/outbox/payloads"
)

const defaultDispatchTimeout = 10 * time.Second

// Request is one notification addressed to a marketplace party.
type Request struct {
	RecipientID   uuid.UUID
	RecipientRole enums.Role
	Type          enums.NotificationType
	Args          map[string]string
}

// Notifier is the fire-and-forget surface the money-moving services use.
// Notify never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, requests ...Request)
}

// Dispatcher persists notifications and queues them for delivery through the
// outbox, off the caller's goroutine.
type Dispatcher struct {
	db      db.TxRunner
	repo    Repository
	outbox  outbox.Emitter
	logg    *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wires the dispatcher dependencies.
func NewDispatcher(runner db.TxRunner, repo Repository, outboxSvc outbox.Emitter, logg *logger.Logger) (*Dispatcher, error) {
	if runner == nil {
		return nil, errors.New("transaction runner required")
	}
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if outboxSvc == nil {
		return nil, errors.New("outbox service required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{
		db:      runner,
		repo:    repo,
		outbox:  outboxSvc,
		logg:    logg,
		timeout: defaultDispatchTimeout,
	}, nil
}

// Notify sends requests asynchronously. The work is detached from ctx
// cancellation so a finished HTTP request does not abort it.
func (d *Dispatcher) Notify(ctx context.Context, requests ...Request) {
	if len(requests) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.Send(sendCtx, requests...); err != nil {
			d.logg.WarnErr(sendCtx, "notification dispatch failed", err)
		}
	}()
}

// Wait blocks until in-flight Notify calls finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Send stores every request and queues its delivery event in one transaction.
func (d *Dispatcher) Send(ctx context.Context, requests ...Request) error {
	return d.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)
		for _, req := range requests {
			if req.RecipientID == uuid.Nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "notification recipient required")
			}
			title, message, ok := render(req.Type, req.Args)
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown notification type").
					WithDetails(map[string]any{"type": req.Type})
			}

			row := &models.Notification{
				RecipientID:   req.RecipientID,
				RecipientType: req.RecipientRole,
				Type:          req.Type,
				Title:         title,
				Message:       message,
				Args:          req.Args,
			}
			if err := repo.Create(ctx, row); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create notification")
			}

			if err := d.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventNotificationRequested,
				AggregateType: enums.AggregateNotification,
				AggregateID:   row.ID,
				Data: payloads.NotificationRequestedEvent{
					NotificationID: row.ID,
					RecipientID:    row.RecipientID,
					RecipientRole:  row.RecipientType,
					Type:           row.Type,
					Title:          row.Title,
					Message:        row.Message,
					Args:           req.Args,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue notification")
			}
		}
		return nil
	})
}
