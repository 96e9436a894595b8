package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
	"github.com/angelmondragon/escrow-backend/pkg/types"
)

// Dispute is a claim raised against an escrow-held order.
type Dispute struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Code            string                 `gorm:"column:code;type:text;not null;uniqueIndex:uq_disputes_code"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:uq_disputes_order"`
	ComplainantID   uuid.UUID              `gorm:"column:complainant_id;type:uuid;not null"`
	ComplainantRole enums.AccountRole      `gorm:"column:complainant_role;type:text;not null"`
	RespondentID    uuid.UUID              `gorm:"column:respondent_id;type:uuid;not null"`
	RespondentRole  enums.AccountRole      `gorm:"column:respondent_role;type:text;not null"`
	Category        enums.DisputeCategory  `gorm:"column:category;type:text;not null"`
	Description     string                 `gorm:"column:description;type:text;not null"`
	Status          enums.DisputeStatus    `gorm:"column:status;type:text;not null;default:'open';index"`
	AssignedTo      *uuid.UUID             `gorm:"column:assigned_to;type:uuid;index"`
	AssignedAt      *time.Time             `gorm:"column:assigned_at"`
	Decision        *enums.DisputeDecision `gorm:"column:decision;type:text"`
	RefundAmount    *int64                 `gorm:"column:refund_amount"`
	ResolutionNotes *string                `gorm:"column:resolution_notes;type:text"`
	ResolvedBy      *uuid.UUID             `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt      *time.Time             `gorm:"column:resolved_at"`
	Order           *Order                 `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// DisputeStaff is a support staff member eligible for dispute assignment.
type DisputeStaff struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_dispute_staff_user"`
	Name           string           `gorm:"column:name;type:text;not null"`
	Role           enums.StaffRole  `gorm:"column:role;type:text;not null"`
	Specialties    types.StringList `gorm:"column:specialties;type:jsonb"`
	MaxConcurrent  int              `gorm:"column:max_concurrent;not null;default:10"`
	ActiveDisputes int              `gorm:"column:active_disputes;not null;default:0;check:chk_dispute_staff_active_non_negative,active_disputes >= 0"`
	Available      bool             `gorm:"column:available;not null;default:true"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (DisputeStaff) TableName() string {
	return "dispute_staff"
}

func (s *DisputeStaff) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
