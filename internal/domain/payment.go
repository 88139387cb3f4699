package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Payment is written exactly once per gateway reference and is immutable
// afterwards. The unique index on Reference is the idempotency guard for
// redelivered webhooks; duplicate inserts surface as a constraint
// violation, never as a second row.
type Payment struct {
	ID        uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Reference string        `gorm:"column:reference;uniqueIndex;not null" json:"reference"`
	Amount    float64       `gorm:"column:amount;not null" json:"amount"`
	Currency  string        `gorm:"column:currency;not null" json:"currency"`
	Channel   string        `gorm:"column:channel" json:"channel"`
	Status    PaymentStatus `gorm:"column:status;not null" json:"status"`

	GatewayResponse datatypes.JSON `gorm:"column:gateway_response;type:jsonb" json:"gateway_response"`

	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:SET NULL;foreignKey:UserID;references:ID" json:"user,omitempty"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	Project   *Project  `gorm:"constraint:OnDelete:SET NULL;foreignKey:ProjectID;references:ID" json:"project,omitempty"`

	PaidAt    *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;default:now()" json:"created_at"`
}

func (Payment) TableName() string { return "payment" }
