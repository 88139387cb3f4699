package domain

import (
	"time"
)

// Phase is the coarse grouping used for percentage weighting and time
// tracking. chapters is tracked per chapter id inside ContentProgress.
type Phase string

const (
	PhaseOutline  Phase = "outline"
	PhaseResearch Phase = "research"
	PhaseWriting  Phase = "writing"
	PhaseAbstract Phase = "abstract"
	PhaseChapters Phase = "chapters"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseOutline, PhaseResearch, PhaseWriting, PhaseAbstract, PhaseChapters:
		return true
	}
	return false
}

// Milestone is the closed set of lifecycle events content generation
// reports. Every variant has exactly one merge rule in the progress
// service; an unknown tag is rejected at the boundary.
type Milestone string

const (
	MilestoneOutlineGenerated        Milestone = "OUTLINE_GENERATED"
	MilestoneResearchInProgress      Milestone = "RESEARCH_IN_PROGRESS"
	MilestoneResearchComplete        Milestone = "RESEARCH_COMPLETE"
	MilestoneWritingInProgress       Milestone = "WRITING_IN_PROGRESS"
	MilestoneChapterWritingStarted   Milestone = "CHAPTER_WRITING_STARTED"
	MilestoneChapterWritingCompleted Milestone = "CHAPTER_WRITING_COMPLETED"
	MilestoneAbstractGenerated       Milestone = "ABSTRACT_GENERATED"
	MilestoneProjectComplete         Milestone = "PROJECT_COMPLETE"
)

func (m Milestone) Valid() bool {
	switch m {
	case MilestoneOutlineGenerated, MilestoneResearchInProgress,
		MilestoneResearchComplete, MilestoneWritingInProgress,
		MilestoneChapterWritingStarted, MilestoneChapterWritingCompleted,
		MilestoneAbstractGenerated, MilestoneProjectComplete:
		return true
	}
	return false
}

type MilestoneDetails struct {
	ChapterID    string  `json:"chapterId,omitempty"`
	ChapterTitle string  `json:"chapterTitle,omitempty"`
	DocumentID   string  `json:"documentId,omitempty"`
	DocumentName string  `json:"documentName,omitempty"`
	AIModel      string  `json:"aiModel,omitempty"`
	TokensUsed   int     `json:"tokensUsed,omitempty"`
	TimeSpent    float64 `json:"timeSpent,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

type MilestoneEntry struct {
	Milestone Milestone         `json:"milestone"`
	Phase     Phase             `json:"phase"`
	Timestamp time.Time         `json:"timestamp"`
	Details   *MilestoneDetails `json:"details,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

type PhaseProgress struct {
	Completed bool      `json:"completed,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ChapterProgress struct {
	Status      string     `json:"status,omitempty"`
	Title       string     `json:"title,omitempty"`
	Completed   bool       `json:"completed,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	TimeSpent   float64    `json:"timeSpent,omitempty"`
}

// ContentProgress is the materialized view over the milestone log.
type ContentProgress struct {
	Outline  *PhaseProgress              `json:"outline,omitempty"`
	Research *PhaseProgress              `json:"research,omitempty"`
	Writing  *PhaseProgress              `json:"writing,omitempty"`
	Abstract *PhaseProgress              `json:"abstract,omitempty"`
	Overall  *PhaseProgress              `json:"overall,omitempty"`
	Chapters map[string]*ChapterProgress `json:"chapters,omitempty"`
}

type PhaseTime struct {
	TotalTime float64 `json:"totalTime"`
}

type TimeTracking map[string]*PhaseTime
