// Package recommendation holds the recommendation request aggregate and the
// error taxonomy shared by the lifecycle components.
package recommendation

import (
	"net/mail"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusReceived Status = "received"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition can leave the status.
func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusExpired
}

type CommunicationStyle string

const (
	StyleFormal   CommunicationStyle = "formal"
	StylePolite   CommunicationStyle = "polite"
	StyleFriendly CommunicationStyle = "friendly"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// MaxReminderOffsetDays bounds a single reminder interval.
const MaxReminderOffsetDays = 365

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Request is a recommendation letter request addressed to one recommender.
type Request struct {
	ID          string
	StudentID   string
	RecipientID string
	Requester   Contact
	Recommender Contact

	Title               string
	Description         string
	AdditionalContext   string
	RelationshipContext string
	Style               CommunicationStyle

	Route              Route
	InstitutionName    string
	SchoolEmail        string
	SchoolInstructions string

	IncludeDraft bool
	DraftContent string

	Deadline          time.Time
	ReminderIntervals []int
	NextReminderAt    *time.Time
	LastReminderAt    *time.Time
	ReminderCount     int
	SentAt            *time.Time

	// SecureToken is only populated in memory right after issue.
	SecureToken    string
	SealedToken    []byte
	TokenExpiresAt *time.Time

	Status   Status
	Priority Priority

	LetterRef  string
	ReceivedAt *time.Time
	ExpiredAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasSchoolDetails reports whether any institution field is set.
func (r Request) HasSchoolDetails() bool {
	return strings.TrimSpace(r.InstitutionName) != "" ||
		strings.TrimSpace(r.SchoolEmail) != "" ||
		strings.TrimSpace(r.SchoolInstructions) != ""
}

// HasDraft reports whether a draft letter accompanies the request.
func (r Request) HasDraft() bool {
	return r.IncludeDraft && strings.TrimSpace(r.DraftContent) != ""
}

// Draft is unvalidated input for a new request.
type Draft struct {
	StudentID           string             `json:"studentId"`
	RecipientID         string             `json:"recipientId"`
	Requester           Contact            `json:"requester"`
	Recommender         Contact            `json:"recommender"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	AdditionalContext   string             `json:"additionalContext"`
	RelationshipContext string             `json:"relationshipContext"`
	Style               CommunicationStyle `json:"communicationStyle"`
	RequestType         RequestType        `json:"requestType"`
	SubmissionMethod    SubmissionMethod   `json:"submissionMethod"`
	InstitutionName     string             `json:"institutionName"`
	SchoolEmail         string             `json:"schoolEmail"`
	SchoolInstructions  string             `json:"schoolInstructions"`
	IncludeDraft        bool               `json:"includeDraft"`
	DraftContent        string             `json:"draftContent"`
	Deadline            time.Time          `json:"deadline"`
	ReminderIntervals   []int              `json:"reminderIntervals"`
	Priority            Priority           `json:"priority"`
}

// NewRequest validates a draft and returns a request in status draft.
// The caller assigns the ID.
func NewRequest(d Draft, now time.Time) (Request, error) {
	route, err := ParseRoute(d.RequestType, d.SubmissionMethod)
	if err != nil {
		return Request{}, err
	}

	studentID := strings.TrimSpace(d.StudentID)
	if studentID == "" {
		return Request{}, invalid("studentId", "is required")
	}
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return Request{}, invalid("title", "is required")
	}
	requester, err := normalizeContact("requester", d.Requester)
	if err != nil {
		return Request{}, err
	}
	recommender, err := normalizeContact("recommender", d.Recommender)
	if err != nil {
		return Request{}, err
	}
	schoolEmail := strings.TrimSpace(d.SchoolEmail)
	if schoolEmail != "" {
		if _, err := mail.ParseAddress(schoolEmail); err != nil {
			return Request{}, invalid("schoolEmail", "is not a valid address")
		}
	}

	style, err := parseStyle(d.Style)
	if err != nil {
		return Request{}, err
	}
	priority, err := parsePriority(d.Priority)
	if err != nil {
		return Request{}, err
	}

	if d.Deadline.IsZero() {
		return Request{}, invalid("deadline", "is required")
	}
	if !d.Deadline.After(now) {
		return Request{}, invalid("deadline", "must be in the future")
	}
	if err := ValidateIntervals(d.ReminderIntervals); err != nil {
		return Request{}, err
	}

	return Request{
		StudentID:           studentID,
		RecipientID:         strings.TrimSpace(d.RecipientID),
		Requester:           requester,
		Recommender:         recommender,
		Title:               title,
		Description:         strings.TrimSpace(d.Description),
		AdditionalContext:   strings.TrimSpace(d.AdditionalContext),
		RelationshipContext: strings.TrimSpace(d.RelationshipContext),
		Style:               style,
		Route:               route,
		InstitutionName:     strings.TrimSpace(d.InstitutionName),
		SchoolEmail:         schoolEmail,
		SchoolInstructions:  strings.TrimSpace(d.SchoolInstructions),
		IncludeDraft:        d.IncludeDraft,
		DraftContent:        d.DraftContent,
		Deadline:            d.Deadline.UTC(),
		ReminderIntervals:   append([]int(nil), d.ReminderIntervals...),
		Status:              StatusDraft,
		Priority:            priority,
		CreatedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}, nil
}

// ValidateIntervals checks that offsets are whole days, strictly decreasing.
func ValidateIntervals(intervals []int) error {
	for i, days := range intervals {
		if days < 0 || days > MaxReminderOffsetDays {
			return invalid("reminderIntervals", "must be between 0 and 365 days")
		}
		if i > 0 && days >= intervals[i-1] {
			return invalid("reminderIntervals", "must be strictly decreasing")
		}
	}
	return nil
}

func normalizeContact(field string, c Contact) (Contact, error) {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return Contact{}, invalid(field+".email", "is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Contact{}, invalid(field+".email", "is not a valid address")
	}
	return Contact{Name: strings.TrimSpace(c.Name), Email: email}, nil
}

func parseStyle(raw CommunicationStyle) (CommunicationStyle, error) {
	switch CommunicationStyle(strings.ToLower(strings.TrimSpace(string(raw)))) {
	case "", StylePolite:
		return StylePolite, nil
	case StyleFormal:
		return StyleFormal, nil
	case StyleFriendly:
		return StyleFriendly, nil
	default:
		return "", invalid("communicationStyle", "must be formal, polite or friendly")
	}
}

func parsePriority(raw Priority) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(string(raw)))) {
	case "", PriorityMedium:
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", invalid("priority", "must be low, medium or high")
	}
}
