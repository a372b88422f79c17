package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// JobRole is the position a candidate is interviewing for.
type JobRole string

const (
	JobRoleSDE    JobRole = "SDE"
	JobRoleQA     JobRole = "QA"
	JobRolePM     JobRole = "PM"
	JobRoleHR     JobRole = "HR"
	JobRoleUIUX   JobRole = "UI/UX"
	JobRoleDevOps JobRole = "DevOps"
)

var jobRoleLabels = map[JobRole]string{
	JobRoleSDE:    "Software Development Engineer",
	JobRoleQA:     "Quality Assurance",
	JobRolePM:     "Project Manager",
	JobRoleHR:     "Human Resources",
	JobRoleUIUX:   "User Interface/User Experience",
	JobRoleDevOps: "Development Operations",
}

// Label returns the human-readable role name, or "" for unknown roles.
func (r JobRole) Label() string {
	return jobRoleLabels[r]
}

// Valid reports whether r is one of the supported roles.
func (r JobRole) Valid() bool {
	_, ok := jobRoleLabels[r]
	return ok
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "E"
	DifficultyMedium Difficulty = "M"
	DifficultyHard   Difficulty = "H"
)

type Category string

const (
	CategoryTechnical  Category = "technical"
	CategoryBehavioral Category = "behavioral"
	CategoryScenario   Category = "scenario"
)

type Profile struct {
	UserID        string     `json:"userId"`
	PreferredRole JobRole    `json:"preferredRole"`
	Difficulty    Difficulty `json:"difficulty"`
	Category      Category   `json:"category"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// DefaultProfile is created for every new user.
func DefaultProfile(userID string) Profile {
	return Profile{
		UserID:        userID,
		PreferredRole: JobRoleSDE,
		Difficulty:    DifficultyMedium,
		Category:      CategoryTechnical,
		UpdatedAt:     time.Now().UTC(),
	}
}

// ResumeFields is the structured snapshot extracted from an uploaded résumé.
// Missing fields are empty strings.
type ResumeFields struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Skills     string `json:"skills"`
	Experience string `json:"experience"`
	Education  string `json:"education"`
}

// Empty reports whether nothing could be extracted.
func (f ResumeFields) Empty() bool {
	return f.Name == "" && f.Role == "" && f.Skills == "" && f.Experience == "" && f.Education == ""
}

type Resume struct {
	ID               string       `json:"id"`
	OwnerID          string       `json:"ownerId"`
	OriginalFilename string       `json:"originalFilename"`
	StorageKey       string       `json:"-"`
	Fields           ResumeFields `json:"fields"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

type SessionState string

const (
	SessionCreated           SessionState = "created"
	SessionQuestionsReady    SessionState = "questions_ready"
	SessionAnswersInProgress SessionState = "answers_in_progress"
	SessionClosed            SessionState = "closed"
)

type Session struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	ResumeID   string       `json:"resumeId,omitempty"`
	TargetRole JobRole      `json:"targetRole"`
	State      SessionState `json:"state"`
	StartedAt  time.Time    `json:"startedAt"`
	EndedAt    *time.Time   `json:"endedAt"`
}

type Question struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisDone       AnalysisStatus = "done"
	AnalysisFailed     AnalysisStatus = "failed"
)

// Resolved reports whether no further analysis will happen without an explicit dispatch.
func (s AnalysisStatus) Resolved() bool {
	return s == AnalysisDone || s == AnalysisFailed
}

type Answer struct {
	ID             string         `json:"id"`
	QuestionID     string         `json:"questionId"`
	SessionID      string         `json:"sessionId"`
	UserID         string         `json:"userId"`
	Transcript     string         `json:"transcript,omitempty"`
	Segments       []Segment      `json:"segments,omitempty"`
	AudioKey       string         `json:"-"`
	AudioFilename  string         `json:"audioFilename,omitempty"`
	AnalysisStatus AnalysisStatus `json:"analysisStatus"`
	FailureReason  string         `json:"failureReason,omitempty"`
	Attempts       int            `json:"attempts"`
	RespondedAt    time.Time      `json:"respondedAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Segment is one timestamped piece of a transcription.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ResponseScores is the analyzer verdict for one answer.
type ResponseScores struct {
	Tone      string  `json:"tone"`
	Speed     string  `json:"speed"`
	Fluency   string  `json:"fluency"`
	Relevance float64 `json:"relevance"`
}

type AnalysisResult struct {
	AnswerID        string    `json:"answerId"`
	Tone            string    `json:"tone"`
	Speed           string    `json:"speed"`
	Fluency         string    `json:"fluency"`
	Relevance       float64   `json:"relevance"`
	PaceWPM         *float64  `json:"paceWpm"`
	AvgPauseSeconds *float64  `json:"avgPauseSeconds"`
	PauseCount      *int      `json:"pauseCount"`
	RateConsistency *float64  `json:"rateConsistency"`
	AnalyzedAt      time.Time `json:"analyzedAt"`
}

type NotificationKind string

const (
	NotifySignedUp     NotificationKind = "user.signed_up"
	NotifyAnswerScored NotificationKind = "answer.analyzed"
	NotifyReportReady  NotificationKind = "session.report_ready"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	SessionID string           `json:"sessionId,omitempty"`
	Kind      NotificationKind `json:"kind"`
	EventKey  string           `json:"-"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}
