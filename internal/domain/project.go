package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	StatusOutlineGenerated        ProjectStatus = "OUTLINE_GENERATED"
	StatusResearchInProgress      ProjectStatus = "RESEARCH_IN_PROGRESS"
	StatusResearchComplete        ProjectStatus = "RESEARCH_COMPLETE"
	StatusWritingInProgress       ProjectStatus = "WRITING_IN_PROGRESS"
	StatusChapterWritingStarted   ProjectStatus = "CHAPTER_WRITING_STARTED"
	StatusChapterWritingCompleted ProjectStatus = "CHAPTER_WRITING_COMPLETED"
	StatusAbstractGenerated       ProjectStatus = "ABSTRACT_GENERATED"
	StatusProjectComplete         ProjectStatus = "PROJECT_COMPLETE"
)

type ProjectMode string

const (
	ModeDIY       ProjectMode = "DIY"
	ModeConcierge ProjectMode = "CONCIERGE"
)

type Project struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	User        *User      `gorm:"constraint:OnDelete:SET NULL;foreignKey:UserID;references:ID" json:"user,omitempty"`
	AnonymousID *string    `gorm:"column:anonymous_id;index" json:"anonymous_id,omitempty"`

	Topic    string `gorm:"column:topic;not null" json:"topic"`
	Twist    string `gorm:"column:twist" json:"twist"`
	Abstract string `gorm:"column:abstract;type:text" json:"abstract"`

	Status     ProjectStatus `gorm:"column:status;not null;default:'OUTLINE_GENERATED'" json:"status"`
	IsLocked   bool          `gorm:"column:is_locked;not null;default:false;index" json:"is_locked"`
	LockedAt   *time.Time    `gorm:"column:locked_at" json:"locked_at,omitempty"`
	IsUnlocked bool          `gorm:"column:is_unlocked;not null;default:false" json:"is_unlocked"`
	Mode       *ProjectMode  `gorm:"column:mode" json:"mode,omitempty"`

	// ProgressPercentage is derived from ContentProgress; clients never set it.
	ProgressPercentage int `gorm:"column:progress_percentage;not null;default:0" json:"progress_percentage"`

	ContentProgress    datatypes.JSON `gorm:"column:content_progress;type:jsonb" json:"content_progress"`
	DocumentProgress   datatypes.JSON `gorm:"column:document_progress;type:jsonb" json:"document_progress"`
	AIGenerationStatus datatypes.JSON `gorm:"column:ai_generation_status;type:jsonb" json:"ai_generation_status"`
	TimeTracking       datatypes.JSON `gorm:"column:time_tracking;type:jsonb" json:"time_tracking"`

	// Milestones is an append-only log; it is the audit trail the
	// progress fields are derived from and is never truncated.
	Milestones datatypes.JSON `gorm:"column:milestones;type:jsonb" json:"milestones"`

	EstimatedCompletion *time.Time `gorm:"column:estimated_completion" json:"estimated_completion,omitempty"`
	ActualCompletion    *time.Time `gorm:"column:actual_completion" json:"actual_completion,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Project) TableName() string { return "project" }

func (p *Project) Owner() Owner {
	if p.UserID != nil {
		return AuthenticatedOwner(*p.UserID)
	}
	if p.AnonymousID != nil {
		return AnonymousOwner(*p.AnonymousID)
	}
	return Owner{}
}
