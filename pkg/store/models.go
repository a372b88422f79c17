package store

import (
	"time"

	"gorm.io/datatypes"
	"mockinterview/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Username     string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ProfileModel struct {
	UserID        string `gorm:"primaryKey"`
	PreferredRole string `gorm:"not null"`
	Difficulty    string `gorm:"not null"`
	Category      string `gorm:"not null"`
	UpdatedAt     time.Time
}

type ResumeModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	OriginalFilename string `gorm:"not null"`
	StorageKey       string
	Fields           datatypes.JSONType[domain.ResumeFields] `gorm:"type:jsonb"`
	CreatedAt        time.Time                               `gorm:"not null"`
	UpdatedAt        time.Time                               `gorm:"not null"`
}

type SessionModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"not null;index"`
	ResumeID   string
	TargetRole string
	State      string    `gorm:"not null"`
	StartedAt  time.Time `gorm:"not null;index"`
	EndedAt    *time.Time
}

type QuestionModel struct {
	ID        string    `gorm:"primaryKey"`
	SessionID string    `gorm:"not null;uniqueIndex:idx_question_position"`
	Position  int       `gorm:"not null;uniqueIndex:idx_question_position"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type AnswerModel struct {
	ID             string                              `gorm:"primaryKey"`
	QuestionID     string                              `gorm:"not null;index"`
	SessionID      string                              `gorm:"not null;index"`
	UserID         string                              `gorm:"not null"`
	Transcript     string                              `gorm:"type:text"`
	Segments       datatypes.JSONSlice[domain.Segment] `gorm:"type:jsonb"`
	AudioKey       string
	AudioFilename  string
	AnalysisStatus string `gorm:"not null"`
	FailureReason  string
	Attempts       int
	RespondedAt    time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type AnalysisModel struct {
	AnswerID        string `gorm:"primaryKey"`
	Tone            string
	Speed           string
	Fluency         string `gorm:"type:text"`
	Relevance       float64
	PaceWPM         *float64
	AvgPauseSeconds *float64
	PauseCount      *int
	RateConsistency *float64
	AnalyzedAt      time.Time `gorm:"not null"`
}

type NotificationModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	SessionID string
	Kind      string    `gorm:"not null"`
	EventKey  string    `gorm:"uniqueIndex;not null"`
	Message   string    `gorm:"size:255;not null"`
	Read      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index"`
}
