// Package model defines the canonical records flowing through the pipeline:
// transient notices parsed from the upstream feeds, their attachments, and
// the persistent solicitation aggregate they merge into.
package model

import "time"

// NoticeType is the canonical procurement notice category.
type NoticeType string

const (
	TypePresolicitation NoticeType = "Presolicitation"
	TypeCombined        NoticeType = "Combined Synopsis/Solicitation"
	TypeSolicitation    NoticeType = "Solicitation"
	TypeModification    NoticeType = "Modification/Amendment"
	TypeAward           NoticeType = "Award"
	TypeSourcesSought   NoticeType = "Sources Sought"
	TypeSpecialNotice   NoticeType = "Special Notice"
	TypeJustification   NoticeType = "Justification and Authorization"
	TypeSaleOfSurplus   NoticeType = "Sale of Surplus Property"
	TypeIntentToBundle  NoticeType = "Intent to Bundle Requirements"
	TypeTrain           NoticeType = "Train"
)

// Notice is one upstream record in canonical form. Notices are created fresh
// per ingestion cycle and are never persisted directly; they are the input to
// reconciliation.
type Notice struct {
	NoticeType         NoticeType `json:"notice_type"`
	SolNum             string     `json:"sol_num"`
	Agency             string     `json:"agency"`
	Office             string     `json:"office"`
	ClassificationCode string     `json:"classification_code,omitempty"`
	NAICSCode          string     `json:"naics_code,omitempty"`
	Subject            string     `json:"subject"`
	SetAside           string     `json:"set_aside,omitempty"`
	Emails             []string   `json:"emails,omitempty"`
	Description        string     `json:"description,omitempty"`
	URL                string     `json:"url,omitempty"`
	PostedDate         time.Time  `json:"posted_date"`
	ModifiedDate       time.Time  `json:"modified_date,omitempty"`

	// EstarEnabled gates the experimental secondary sub-score.
	EstarEnabled bool `json:"estar_enabled,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a document associated with a notice, plus its extracted text
// and compliance prediction. Owned exclusively by a solicitation after merge.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename"`
	URL      string `json:"url"`

	// Text is the extracted document text; empty when the document could not
	// be read. MachineReadable is true iff extraction yielded non-empty text.
	Text            string `json:"text,omitempty"`
	MachineReadable bool   `json:"machine_readable"`

	// Prediction is the classifier output (0 = non-compliant, 1 = compliant),
	// nil until scored. DecisionBoundary is the confidence magnitude.
	Prediction       *int     `json:"prediction,omitempty"`
	DecisionBoundary *float64 `json:"decision_boundary,omitempty"`

	// Validation is human-provided ground truth, independent of Prediction.
	Validation *int `json:"validation,omitempty"`
	// Trained marks attachments already consumed by a training run.
	Trained bool `json:"trained"`
}

// Agency is a canonical agency reference record.
type Agency struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
