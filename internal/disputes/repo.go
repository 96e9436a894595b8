package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/db/models"
	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/pagination"
)

// Repository defines persistence for disputes and the staff who work them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispute *models.Dispute) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error)
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Dispute, error)
	ListUnassigned(ctx context.Context, limit int) ([]models.Dispute, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.DisputeStatus, updates map[string]any) (int64, error)
	ListAvailableStaff(ctx context.Context) ([]models.DisputeStaff, error)
	FindStaffByUser(ctx context.Context, userID uuid.UUID) (*models.DisputeStaff, error)
	ClaimStaffSlot(ctx context.Context, staffID uuid.UUID) (int64, error)
	ReleaseStaffSlot(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ListFilters narrows a dispute listing.
type ListFilters struct {
	PartyID    *uuid.UUID
	AssignedTo *uuid.UUID
	Status     enums.DisputeStatus
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a disputes repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dispute *models.Dispute) error {
	return r.db.WithContext(ctx).Omit("Order").Create(dispute).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.WithContext(ctx).Preload("Order.Items").Where("id = ?", id).First(&dispute).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&dispute).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Dispute, error) {
	query := r.db.WithContext(ctx).Model(&models.Dispute{})
	if filters.PartyID != nil {
		query = query.Where("complainant_id = ? OR respondent_id = ?", *filters.PartyID, *filters.PartyID)
	}
	if filters.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filters.AssignedTo)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	var rows []models.Dispute
	if err := pagination.Apply(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUnassigned returns open disputes oldest first.
func (r *repository) ListUnassigned(ctx context.Context, limit int) ([]models.Dispute, error) {
	var rows []models.Dispute
	err := r.db.WithContext(ctx).
		Where("status = ? AND assigned_to IS NULL", enums.DisputeStatusOpen).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.DisputeStatus, updates map[string]any) (int64, error) {
	columns := map[string]any{"status": to}
	for key, value := range updates {
		columns[key] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND status = ?", id, from).
		Updates(columns)
	return res.RowsAffected, res.Error
}

func (r *repository) ListAvailableStaff(ctx context.Context) ([]models.DisputeStaff, error) {
	var staff []models.DisputeStaff
	err := r.db.WithContext(ctx).
		Where("available = ? AND active_disputes < max_concurrent", true).
		Order("created_at ASC").
		Find(&staff).Error
	if err != nil {
		return nil, err
	}
	return staff, nil
}

func (r *repository) FindStaffByUser(ctx context.Context, userID uuid.UUID) (*models.DisputeStaff, error) {
	var staff models.DisputeStaff
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&staff).Error; err != nil {
		return nil, err
	}
	return &staff, nil
}

// ClaimStaffSlot takes one unit of the staff member's capacity, only while
// they are still under their cap.
func (r *repository) ClaimStaffSlot(ctx context.Context, staffID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DisputeStaff{}).
		Where("id = ? AND available = ? AND active_disputes < max_concurrent", staffID, true).
		UpdateColumn("active_disputes", gorm.Expr("active_disputes + ?", 1))
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseStaffSlot(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DisputeStaff{}).
		Where("user_id = ? AND active_disputes > 0", userID).
		UpdateColumn("active_disputes", gorm.Expr("active_disputes - ?", 1))
	return res.RowsAffected, res.Error
}
