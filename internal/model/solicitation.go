package model

import (
	"strings"
	"time"
)

// ReviewRec is the derived human-readable review recommendation.
type ReviewRec string

const (
	RecCompliant      ReviewRec = "Compliant"
	RecNonCompliant   ReviewRec = "Non-compliant (Action Required)"
	RecCannotEvaluate ReviewRec = "Cannot Evaluate (Review Required)"
	RecNotApplicable  ReviewRec = "Not Applicable"
)

// Traffic-light values used in the predictions blob.
const (
	ColorGreen  = "green"
	ColorRed    = "red"
	ColorYellow = "yellow"
	ColorGrey   = "grey"
)

// Color maps a review recommendation to its traffic-light value.
func (r ReviewRec) Color() string {
	switch r {
	case RecCompliant:
		return ColorGreen
	case RecNonCompliant:
		return ColorRed
	case RecCannotEvaluate:
		return ColorYellow
	case RecNotApplicable:
		return ColorGrey
	default:
		return ColorGrey
	}
}

// AuditEntry is one append-only history or action event. Entries are never
// mutated in place; new events are appended.
type AuditEntry struct {
	Date   string `json:"date"`
	User   string `json:"user,omitempty"`
	Action string `json:"action"`
	Status string `json:"status,omitempty"`
}

// PredictionSnapshot is one append-only entry in Predictions.History.
type PredictionSnapshot struct {
	Date   string `json:"date"`
	Value  string `json:"value"`
	Sec508 string `json:"508"`
	Estar  string `json:"estar"`
}

// Predictions is the typed form of the predictions JSON blob. The wire keys
// (including the literal "508") are fixed by the downstream consumers.
type Predictions struct {
	Value   string               `json:"value"`
	Sec508  string               `json:"508"`
	Estar   string               `json:"estar"`
	History []PredictionSnapshot `json:"history"`
}

// NewPredictions returns the initial predictions blob for a freshly created
// solicitation.
func NewPredictions() Predictions {
	return Predictions{
		Value:   ColorRed,
		Sec508:  ColorRed,
		Estar:   ColorRed,
		History: []PredictionSnapshot{},
	}
}

// ParseStatusEntry records the parse outcome for one attachment. The
// parse_status array is rebuilt on every ingestion event.
type ParseStatusEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}

// Parse status values.
const (
	ParseOK    = "successfully parsed"
	ParseError = "processing error"
)

// Solicitation is the persistent, deduplicated aggregate for one solicitation
// number across its lifetime. SolNum is the natural business key, matched
// case-insensitively.
type Solicitation struct {
	ID             string     `json:"id"`
	SolNum         string     `json:"sol_num"`
	NoticeTypeID   int        `json:"notice_type_id"`
	NoticeType     string     `json:"notice_type"`
	Active         bool       `json:"active"`
	NAFlag         bool       `json:"na_flag"`
	Compliant      *int       `json:"compliant,omitempty"`
	ReviewRec      ReviewRec  `json:"review_rec,omitempty"`
	Agency         string     `json:"agency"`
	AgencyID       *string    `json:"agency_id,omitempty"`
	Office         string     `json:"office,omitempty"`
	Title          string     `json:"title"`
	Classification string     `json:"classification_code,omitempty"`
	NAICSCode      string     `json:"naics_code,omitempty"`
	SetAside       string     `json:"set_aside,omitempty"`
	URL            string     `json:"url,omitempty"`
	Emails         []string   `json:"emails,omitempty"`
	Description    string     `json:"description,omitempty"`
	Date           time.Time  `json:"date"`
	ActionDate     *time.Time `json:"action_date,omitempty"`
	ActionStatus   string     `json:"action_status,omitempty"`

	Predictions Predictions        `json:"predictions"`
	History     []AuditEntry       `json:"history"`
	Action      []AuditEntry       `json:"action"`
	ParseStatus []ParseStatusEntry `json:"parse_status"`

	SearchText string `json:"search_text,omitempty"`
	NumDocs    int    `json:"num_docs"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecomputeSearchText rebuilds the lowercase search blob from the searchable
// fields. Absent fields contribute a blank, never a "None"/"nil" literal.
func (s *Solicitation) RecomputeSearchText() {
	actionDate := ""
	if s.ActionDate != nil {
		actionDate = s.ActionDate.Format("2006-01-02")
	}
	date := ""
	if !s.Date.IsZero() {
		date = s.Date.Format("2006-01-02")
	}
	parts := []string{
		s.SolNum,
		s.NoticeType,
		s.Title,
		date,
		string(s.ReviewRec),
		s.ActionStatus,
		actionDate,
		s.Agency,
		s.Office,
	}
	s.SearchText = strings.ToLower(strings.TrimSpace(strings.Join(parts, " ")))
}
