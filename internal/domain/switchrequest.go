package domain

import (
	"time"

	"github.com/google/uuid"
)

type SwitchRequestStatus string

const (
	SwitchPending  SwitchRequestStatus = "pending"
	SwitchApproved SwitchRequestStatus = "approved"
	SwitchDenied   SwitchRequestStatus = "denied"
)

// TopicSwitchRequest reopens a locked project under review. A partial
// unique index on (project_id) WHERE status='pending' enforces at most
// one open request per project.
type TopicSwitchRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Project   *Project  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProjectID;references:ID" json:"project,omitempty"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Reason      string   `gorm:"column:reason;not null" json:"reason"`
	Explanation *string  `gorm:"column:explanation;type:text" json:"explanation,omitempty"`
	ProofURL    *string  `gorm:"column:proof_url" json:"proof_url,omitempty"`
	Fee         *float64 `gorm:"column:fee" json:"fee,omitempty"`

	Status     SwitchRequestStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	ResolvedAt *time.Time          `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID          `gorm:"column:resolved_by;type:uuid" json:"resolved_by,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (TopicSwitchRequest) TableName() string { return "topic_switch_request" }
