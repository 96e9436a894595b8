package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/internal/ledger"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	"github.com/angelmondragon/escrow-backend/internal/orders"
	"github.com/angelmondragon/escrow-backend/pkg/db"
	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
	"github.com/angelmondragon/escrow-backend/pkg/metrics"
	"github.com/angelmondragon/escrow-backend/pkg/outbox"
	"github.com/angelmondragon/escrow-backend/pkg/pagination"
)

const maxDescriptionLength = 2000

// Service is the dispute resolution engine.
type Service interface {
	Open(ctx context.Context, actor ledger.Party, input OpenInput) (*models.Dispute, error)
	Get(ctx context.Context, actor ledger.Party, id uuid.UUID) (*models.Dispute, error)
	List(ctx context.Context, actor ledger.Party, params ListParams) (*ListResult, error)
	Assign(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	AssignPending(ctx context.Context, limit int) (int, error)
	Transition(ctx context.Context, actor ledger.Party, id uuid.UUID, to enums.DisputeStatus, notes string) (*models.Dispute, error)
	Resolve(ctx context.Context, actor ledger.Party, id uuid.UUID, input ResolveInput) (*models.Dispute, error)
}

// OpenInput is a party's claim against an order.
type OpenInput struct {
	OrderID     uuid.UUID
	Category    enums.DisputeCategory
	Description string
}

// ResolveInput is the staff decision on a dispute.
type ResolveInput struct {
	Decision enums.DisputeDecision
	Notes    string
}

// ListParams selects a page of disputes visible to the caller.
type ListParams struct {
	Status enums.DisputeStatus
	Cursor string
	Limit  int
}

// ListResult is one page of disputes.
type ListResult struct {
	Items  []models.Dispute `json:"items"`
	Cursor string           `json:"cursor"`
}

// ServiceParams groups dependencies for the disputes service.
type ServiceParams struct {
	DB       db.TxRunner
	Repo     Repository
	Orders   orders.Repository
	Ledger   ledger.Service
	Notifier notifications.Notifier
	// Events receives dispute_resolved inside the resolving transaction. Optional.
	Events  outbox.Emitter
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	db       db.TxRunner
	repo     Repository
	orders   orders.Repository
	ledger   ledger.Service
	notifier notifications.Notifier
	events   outbox.Emitter
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the disputes service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Repo == nil {
		return nil, errors.New("disputes repository required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		db:       params.DB,
		repo:     params.Repo,
		orders:   params.Orders,
		ledger:   params.Ledger,
		notifier: params.Notifier,
		events:   params.Events,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      params.Clock,
	}, nil
}

// Open raises a dispute on an escrow-held order. The respondent is always
// the other party to the order.
func (s *service) Open(ctx context.Context, actor ledger.Party, input OpenInput) (*models.Dispute, error) {
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute category")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if len(description) > maxDescriptionLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is too long")
	}

	var dispute *models.Dispute
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOrder(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		complainantRole, respondentID, respondentRole, ok := standing(order, actor)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this order")
		}
		if !order.Status.IsEscrowEligible() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer eligible for dispute").
				WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
		}
		if _, err := repo.FindByOrder(ctx, order.ID); err == nil {
			return duplicateDispute(order.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing dispute")
		}

		dispute = &models.Dispute{
			Code:            newCode(s.now()),
			OrderID:         order.ID,
			ComplainantID:   actor.ID,
			ComplainantRole: complainantRole,
			RespondentID:    respondentID,
			RespondentRole:  respondentRole,
			Category:        input.Category,
			Description:     description,
			Status:          enums.DisputeStatusOpen,
		}
		if err := repo.Create(ctx, dispute); err != nil {
			if db.IsUniqueViolation(err, "order") {
				return duplicateDispute(order.ID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create dispute")
		}
		dispute.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithDisputeID(ctx, dispute.ID.String())
	s.logg.Info(ctx, "dispute opened")
	args := disputeArgs(dispute)
	s.notifier.Notify(ctx,
		notifications.Request{RecipientID: dispute.ComplainantID, RecipientRole: partyRole(dispute.ComplainantRole), Type: enums.NotificationTypeDisputeOpened, Args: args},
		notifications.Request{RecipientID: dispute.RespondentID, RecipientRole: partyRole(dispute.RespondentRole), Type: enums.NotificationTypeDisputeOpened, Args: args},
	)

	assigned, err := s.Assign(ctx, dispute.ID)
	switch {
	case err == nil:
		return assigned, nil
	case pkgerrors.CodeOf(err) == pkgerrors.CodeStateConflict:
		s.logg.Info(ctx, "dispute left unassigned")
	default:
		s.logg.WarnErr(ctx, "assign dispute", err)
	}
	return dispute, nil
}

func (s *service) Get(ctx context.Context, actor ledger.Party, id uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && dispute.ComplainantID != actor.ID && dispute.RespondentID != actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this dispute")
	}
	return dispute, nil
}

func (s *service) List(ctx context.Context, actor ledger.Party, params ListParams) (*ListResult, error) {
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filters := ListFilters{Status: params.Status}
	switch {
	case actor.Role == enums.RoleAdmin:
	case actor.Role == enums.RoleSupport:
		filters.AssignedTo = &actor.ID
	default:
		filters.PartyID = &actor.ID
	}

	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list disputes")
	}
	items, next := pagination.Trim(rows, params.Limit)
	return &ListResult{Items: items, Cursor: next}, nil
}

// Assign hands an open dispute to the best-scoring staff member with spare
// capacity. With nobody eligible the dispute stays open and a state
// conflict is returned so the caller can retry later.
func (s *service) Assign(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	ctx = s.logg.WithDisputeID(ctx, id.String())
	var (
		dispute *models.Dispute
		staff   *models.DisputeStaff
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		dispute, err = s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if dispute.Status != enums.DisputeStatusOpen {
			return pkgerrors.New(pkgerrors.CodeConflict, "dispute is already assigned").
				WithDetails(map[string]any{"status": dispute.Status})
		}

		available, err := repo.ListAvailableStaff(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list staff")
		}
		for _, candidate := range Rank(available, dispute.Category) {
			rows, err := repo.ClaimStaffSlot(ctx, candidate.Staff.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim staff capacity")
			}
			if rows == 1 {
				member := candidate.Staff
				staff = &member
				break
			}
		}
		if staff == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no staff available for assignment")
		}

		now := s.now().UTC()
		if err := s.transition(ctx, repo, dispute, enums.DisputeStatusAssigned, map[string]any{
			"assigned_to": staff.UserID,
			"assigned_at": now,
		}); err != nil {
			return err
		}
		dispute.AssignedTo = &staff.UserID
		dispute.AssignedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "dispute assigned")
	s.notifier.Notify(ctx, notifications.Request{
		RecipientID:   staff.UserID,
		RecipientRole: enums.RoleSupport,
		Type:          enums.NotificationTypeDisputeAssigned,
		Args:          disputeArgs(dispute),
	})
	return dispute, nil
}

// AssignPending retries assignment for disputes still waiting on staff and
// reports how many were placed.
func (s *service) AssignPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	pending, err := s.repo.ListUnassigned(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unassigned disputes")
	}
	assigned := 0
	for _, dispute := range pending {
		_, err := s.Assign(ctx, dispute.ID)
		switch {
		case err == nil:
			assigned++
		case pkgerrors.CodeOf(err) == pkgerrors.CodeStateConflict:
			return assigned, nil
		case pkgerrors.CodeOf(err) == pkgerrors.CodeConflict:
			continue
		default:
			return assigned, err
		}
	}
	return assigned, nil
}

// Transition moves a dispute through triage. Resolution goes through Resolve.
func (s *service) Transition(ctx context.Context, actor ledger.Party, id uuid.UUID, to enums.DisputeStatus, notes string) (*models.Dispute, error) {
	if to == enums.DisputeStatusResolved {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "use resolve to settle a dispute")
	}
	if !to.IsValid() || to == enums.DisputeStatusOpen || to == enums.DisputeStatusAssigned {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	ctx = s.logg.WithDisputeID(ctx, id.String())

	var dispute *models.Dispute
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		dispute, err = s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := authorizeStaff(dispute, actor); err != nil {
			return err
		}
		if dispute.Status.IsFinal() {
			return pkgerrors.New(pkgerrors.CodeConflict, "dispute is already "+dispute.Status.String())
		}

		updates := map[string]any{}
		if note := strings.TrimSpace(notes); note != "" {
			updates["resolution_notes"] = note
		}
		if to == enums.DisputeStatusClosed {
			now := s.now().UTC()
			updates["resolved_by"] = actor.ID
			updates["resolved_at"] = now
		}
		if err := s.transition(ctx, repo, dispute, to, updates); err != nil {
			return err
		}
		if to == enums.DisputeStatusClosed {
			return s.releaseStaff(ctx, repo, dispute)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "dispute moved to "+to.String())
	return dispute, nil
}

// Resolve settles the escrow behind a dispute exactly once. The dispute
// record, the order status and every wallet credit commit together.
func (s *service) Resolve(ctx context.Context, actor ledger.Party, id uuid.UUID, input ResolveInput) (*models.Dispute, error) {
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute decision")
	}
	ctx = s.logg.WithDisputeID(ctx, id.String())

	var (
		dispute    *models.Dispute
		allocation Allocation
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		dispute, err = s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if dispute.Status == enums.DisputeStatusResolved {
			return pkgerrors.New(pkgerrors.CodeConflict, "dispute is already resolved")
		}
		if err := authorizeStaff(dispute, actor); err != nil {
			return err
		}
		if !dispute.Status.CanTransitionTo(enums.DisputeStatusResolved) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute cannot be resolved from its current status").
				WithDetails(map[string]any{"status": dispute.Status})
		}

		order := dispute.Order
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "dispute order missing")
		}
		if !order.Status.IsEscrowEligible() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order escrow is no longer held").
				WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
		}

		allocation, err = Allocate(input.Decision, order.TotalAmount)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		decision := input.Decision
		refund := allocation.Buyer
		updates := map[string]any{
			"decision":      decision,
			"refund_amount": refund,
			"resolved_by":   actor.ID,
			"resolved_at":   now,
		}
		if note := strings.TrimSpace(input.Notes); note != "" {
			updates["resolution_notes"] = note
		}
		if err := s.transition(ctx, repo, dispute, enums.DisputeStatusResolved, updates); err != nil {
			return err
		}
		dispute.Decision = &decision
		dispute.RefundAmount = &refund
		dispute.ResolvedBy = &actor.ID
		dispute.ResolvedAt = &now

		if err := s.settleOrder(ctx, tx, actor, dispute, allocation, now); err != nil {
			return err
		}
		return s.releaseStaff(ctx, repo, dispute)
	})
	if err != nil {
		return nil, err
	}

	if allocation.Buyer > 0 {
		s.metrics.ObservePosting(string(enums.TransactionKindCredit), allocation.Buyer)
	}
	if allocation.Seller > 0 {
		s.metrics.ObservePosting(string(enums.TransactionKindCredit), allocation.Seller)
	}
	s.logg.Info(ctx, "dispute resolved")
	s.notifyResolved(ctx, dispute, allocation)
	return dispute, nil
}

func (s *service) notifyResolved(ctx context.Context, dispute *models.Dispute, allocation Allocation) {
	amountFor := func(role enums.AccountRole) int64 {
		if role == enums.AccountRoleBuyer {
			return allocation.Buyer
		}
		return allocation.Seller
	}
	requests := make([]notifications.Request, 0, 2)
	for _, party := range []struct {
		id   uuid.UUID
		role enums.AccountRole
	}{
		{dispute.ComplainantID, dispute.ComplainantRole},
		{dispute.RespondentID, dispute.RespondentRole},
	} {
		args := disputeArgs(dispute)
		args[notifications.ArgAmount] = notifications.Amount(amountFor(party.role))
		requests = append(requests, notifications.Request{
			RecipientID:   party.id,
			RecipientRole: partyRole(party.role),
			Type:          enums.NotificationTypeDisputeResolved,
			Args:          args,
		})
	}
	s.notifier.Notify(ctx, requests...)
}

func (s *service) transition(ctx context.Context, repo Repository, dispute *models.Dispute, to enums.DisputeStatus, updates map[string]any) error {
	if !dispute.Status.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute status transition not allowed").
			WithDetails(map[string]any{"from": dispute.Status, "to": to})
	}
	rows, err := repo.TransitionStatus(ctx, dispute.ID, dispute.Status, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update dispute status")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "dispute changed concurrently")
	}
	dispute.Status = to
	return nil
}

func (s *service) releaseStaff(ctx context.Context, repo Repository, dispute *models.Dispute) error {
	if dispute.AssignedTo == nil {
		return nil
	}
	rows, err := repo.ReleaseStaffSlot(ctx, *dispute.AssignedTo)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release staff capacity")
	}
	if rows == 0 {
		s.logg.Warn(ctx, "staff workload already at zero")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Dispute, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	dispute, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispute")
	}
	return dispute, nil
}

func (s *service) loadOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.WithTx(tx).FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// standing reports the actor's side of the order and the opposing party.
func standing(order *models.Order, actor ledger.Party) (enums.AccountRole, uuid.UUID, enums.AccountRole, bool) {
	if actor.Role == enums.RoleBuyer && order.BuyerID == actor.ID {
		return enums.AccountRoleBuyer, order.SellerID, order.SellerAccountRole(), true
	}
	if kind, ok := enums.SellerKindFor(actor.Role); ok && kind == order.SellerKind && order.SellerID == actor.ID {
		return order.SellerAccountRole(), order.BuyerID, enums.AccountRoleBuyer, true
	}
	return "", uuid.Nil, "", false
}

// authorizeStaff allows admins, and support staff on disputes assigned to them.
func authorizeStaff(dispute *models.Dispute, actor ledger.Party) error {
	switch actor.Role {
	case enums.RoleAdmin:
		return nil
	case enums.RoleSupport:
		if dispute.AssignedTo != nil && *dispute.AssignedTo == actor.ID {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "dispute is assigned to another staff member")
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
}

func duplicateDispute(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "a dispute already exists for this order").
		WithDetails(map[string]any{"order_id": orderID})
}

func newCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("DSP-%s-%s", now.UTC().Format("20060102"), suffix)
}

func partyRole(role enums.AccountRole) enums.Role {
	return enums.Role(role)
}

func disputeArgs(dispute *models.Dispute) map[string]string {
	args := map[string]string{
		notifications.ArgDisputeCode: dispute.Code,
		notifications.ArgOrderID:     dispute.OrderID.String(),
	}
	if dispute.Decision != nil {
		args[notifications.ArgDecision] = dispute.Decision.String()
	}
	return args
}
