package store

import "time"

type ResumeStatus string

const (
	ResumePending    ResumeStatus = "pending"
	ResumeProcessing ResumeStatus = "processing"
	ResumeProcessed  ResumeStatus = "processed"
	ResumeRejected   ResumeStatus = "rejected"
	ResumeError      ResumeStatus = "error"
)

// Terminal reports whether no further automatic transition is possible.
func (s ResumeStatus) Terminal() bool {
	return s == ResumeProcessed || s == ResumeRejected || s == ResumeError
}

type PositionStatus string

const (
	PositionActive PositionStatus = "active"
	PositionDraft  PositionStatus = "draft"
	PositionClosed PositionStatus = "closed"
)

type ApplicationType string

const (
	ApplicationDirect      ApplicationType = "direct"
	ApplicationSpontaneous ApplicationType = "spontaneous"
)

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationReviewing ApplicationStatus = "reviewing"
	ApplicationInterview ApplicationStatus = "interview"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationAccepted  ApplicationStatus = "accepted"
)

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationReviewing, ApplicationInterview, ApplicationRejected, ApplicationAccepted:
		return true
	}
	return false
}

type MatchType string

const (
	MatchDirect MatchType = "direct"
	MatchCross  MatchType = "cross"
)

// MailAccount is a connected mailbox of a team.
type MailAccount struct {
	ID           int64
	TeamID       int64
	Email        string
	SyncFromDate *time.Time
	LastSyncAt   *time.Time
	Active       bool
	CreatedAt    time.Time
}

// Resume is a stored candidate document with its classification state.
type Resume struct {
	ID               int64
	TeamID           int64
	CandidateID      *int64
	ObjectKey        string
	FileName         string
	MimeType         string
	FileSize         int64
	ParsedText       *string
	SourceMessageID  string
	EmailFrom        string
	EmailSubject     string
	EmailDate        *time.Time
	Status           ResumeStatus
	ValidationScore  *int
	ValidationReason *string
	UploadedAt       time.Time
	ProcessedAt      *time.Time
}

// Text returns the parsed text or an empty string.
func (r *Resume) Text() string {
	if r == nil || r.ParsedText == nil {
		return ""
	}
	return *r.ParsedText
}

type Experience struct {
	Company     string `json:"company"`
	Position    string `json:"position"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Description string `json:"description"`
}

type Education struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	Field          string `json:"field"`
	GraduationYear string `json:"graduationYear"`
}

type Language struct {
	Language string `json:"language"`
	Level    string `json:"level"`
}

// Candidate is the structured profile extracted from one resume.
type Candidate struct {
	ID                int64
	TeamID            int64
	FirstName         *string
	LastName          *string
	Email             *string
	Phone             *string
	Summary           *string
	YearsOfExperience *int
	TechnicalSkills   []string
	SoftSkills        []string
	Experience        []Experience
	Education         []Education
	Certifications    []string
	Languages         []Language
	KeyAchievements   []string
	LinkedInURL       *string
	Location          *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FullName joins the known name parts.
func (c *Candidate) FullName() string {
	if c == nil {
		return ""
	}
	name := ""
	if c.FirstName != nil {
		name = *c.FirstName
	}
	if c.LastName != nil && *c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *c.LastName
	}
	return name
}

type JobPosition struct {
	ID               int64
	TeamID           int64
	CreatedBy        *int64
	Title            string
	Description      string
	Requirements     string
	Responsibilities string
	Location         string
	EmploymentType   string
	SalaryMin        *int
	SalaryMax        *int
	SalaryCurrency   string
	Status           PositionStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Application struct {
	ID            int64
	ResumeID      int64
	JobPositionID *int64
	Type          ApplicationType
	Status        ApplicationStatus
	AppliedAt     time.Time
	ReviewedAt    *time.Time
	ReviewNotes   *string
}

type Match struct {
	ID            int64
	JobPositionID int64
	CandidateID   int64
	ResumeID      int64
	ApplicationID *int64
	Type          MatchType
	Score         int
	Analysis      string
	Summary       string
	Strengths     []string
	Weaknesses    []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile pairs a processed resume with the candidate extracted from it.
type Profile struct {
	Resume    Resume
	Candidate Candidate
	// ApplicationID is set when the profile applied to the position in question.
	ApplicationID *int64
}

// MatchView is a stored match joined with its candidate.
type MatchView struct {
	Match     Match
	Candidate Candidate
}

// StatusCounts holds resume counts per status for one team.
type StatusCounts struct {
	Total      int
	Pending    int
	Processing int
	Processed  int
	Rejected   int
	Errored    int
}
