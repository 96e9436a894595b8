package enums

import "fmt"

// DisputeStatus tracks a dispute through triage to resolution.
type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusAssigned    DisputeStatus = "assigned"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusEscalated   DisputeStatus = "escalated"
	DisputeStatusResolved    DisputeStatus = "resolved"
	DisputeStatusClosed      DisputeStatus = "closed"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusAssigned,
	DisputeStatusUnderReview,
	DisputeStatusEscalated,
	DisputeStatusResolved,
	DisputeStatusClosed,
}

var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusOpen:        {DisputeStatusAssigned, DisputeStatusClosed},
	DisputeStatusAssigned:    {DisputeStatusUnderReview, DisputeStatusEscalated, DisputeStatusResolved, DisputeStatusClosed},
	DisputeStatusUnderReview: {DisputeStatusEscalated, DisputeStatusResolved, DisputeStatusClosed},
	DisputeStatusEscalated:   {DisputeStatusUnderReview, DisputeStatusResolved, DisputeStatusClosed},
}

func (s DisputeStatus) String() string {
	return string(s)
}

func (s DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFinal reports whether the dispute no longer accepts changes.
func (s DisputeStatus) IsFinal() bool {
	return s == DisputeStatusResolved || s == DisputeStatusClosed
}

func (s DisputeStatus) CanTransitionTo(next DisputeStatus) bool {
	for _, candidate := range disputeTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// DisputeDecision is the outcome chosen by the resolving staff member.
type DisputeDecision string

const (
	DisputeDecisionFavorComplainant DisputeDecision = "favor_complainant"
	DisputeDecisionFavorRespondent  DisputeDecision = "favor_respondent"
	DisputeDecisionPartialRefund    DisputeDecision = "partial_refund"
	DisputeDecisionFullRefund       DisputeDecision = "full_refund"
	DisputeDecisionNoAction         DisputeDecision = "no_action"
)

var validDisputeDecisions = []DisputeDecision{
	DisputeDecisionFavorComplainant,
	DisputeDecisionFavorRespondent,
	DisputeDecisionPartialRefund,
	DisputeDecisionFullRefund,
	DisputeDecisionNoAction,
}

func (d DisputeDecision) String() string {
	return string(d)
}

func (d DisputeDecision) IsValid() bool {
	for _, candidate := range validDisputeDecisions {
		if candidate == d {
			return true
		}
	}
	return false
}

func ParseDisputeDecision(value string) (DisputeDecision, error) {
	for _, candidate := range validDisputeDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute decision %q", value)
}

// DisputeCategory is matched against staff specialties during assignment.
type DisputeCategory string

const (
	DisputeCategoryItemNotReceived    DisputeCategory = "item_not_received"
	DisputeCategoryItemNotAsDescribed DisputeCategory = "item_not_as_described"
	DisputeCategoryDamagedItem        DisputeCategory = "damaged_item"
	DisputeCategoryDeliveryIssue      DisputeCategory = "delivery_issue"
	DisputeCategoryPaymentIssue       DisputeCategory = "payment_issue"
	DisputeCategoryOther              DisputeCategory = "other"
)

var validDisputeCategories = []DisputeCategory{
	DisputeCategoryItemNotReceived,
	DisputeCategoryItemNotAsDescribed,
	DisputeCategoryDamagedItem,
	DisputeCategoryDeliveryIssue,
	DisputeCategoryPaymentIssue,
	DisputeCategoryOther,
}

func (c DisputeCategory) String() string {
	return string(c)
}

func (c DisputeCategory) IsValid() bool {
	for _, candidate := range validDisputeCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseDisputeCategory(value string) (DisputeCategory, error) {
	for _, candidate := range validDisputeCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute category %q", value)
}

// StaffRole orders support staff by seniority.
type StaffRole string

const (
	StaffRoleAgent      StaffRole = "support_agent"
	StaffRoleSenior     StaffRole = "senior_agent"
	StaffRoleSupervisor StaffRole = "supervisor"
)

var staffSeniority = map[StaffRole]int{
	StaffRoleAgent:      1,
	StaffRoleSenior:     2,
	StaffRoleSupervisor: 3,
}

func (r StaffRole) IsValid() bool {
	_, ok := staffSeniority[r]
	return ok
}

// Seniority ranks the role; unknown roles rank zero.
func (r StaffRole) Seniority() int {
	return staffSeniority[r]
}
