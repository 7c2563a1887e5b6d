package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/solwatch/internal/model"
)

const solicitationColumns = `id, sol_num, notice_type_id, active, na_flag, compliant,
	review_rec, agency, agency_id, office, title, classification_code, naics_code,
	set_aside, url, emails, description, date, action_date, action_status,
	predictions, history, action, parse_status, search_text, num_docs,
	created_at, updated_at`

// GetBySolNum finds the solicitation for a solicitation number. The match is
// case-insensitive. Returns (nil, nil) when no row exists.
func (s *Store) GetBySolNum(ctx context.Context, solNum string) (*model.Solicitation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+solicitationColumns+` FROM solicitations WHERE LOWER(sol_num) = LOWER($1)`,
		solNum,
	)
	sol, err := scanSolicitation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get solicitation %s", solNum)
	}
	return sol, nil
}

// InsertSolicitation creates the row, assigning an id and timestamps if the
// caller has not.
func (s *Store) InsertSolicitation(ctx context.Context, sol *model.Solicitation) error {
	if sol.ID == "" {
		sol.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sol.CreatedAt.IsZero() {
		sol.CreatedAt = now
	}
	sol.UpdatedAt = now

	blobs, err := marshalBlobs(sol)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO solicitations (`+solicitationColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		sol.ID, sol.SolNum, sol.NoticeTypeID, sol.Active, sol.NAFlag, sol.Compliant,
		string(sol.ReviewRec), sol.Agency, sol.AgencyID, sol.Office, sol.Title,
		sol.Classification, sol.NAICSCode, sol.SetAside, sol.URL, blobs.emails,
		sol.Description, nullTime(sol.Date), sol.ActionDate, sol.ActionStatus,
		blobs.predictions, blobs.history, blobs.action, blobs.parseStatus,
		sol.SearchText, sol.NumDocs, sol.CreatedAt, sol.UpdatedAt,
	)
	return eris.Wrapf(err, "store: insert solicitation %s", sol.SolNum)
}

// UpdateSolicitation rewrites every mutable column of the row.
func (s *Store) UpdateSolicitation(ctx context.Context, sol *model.Solicitation) error {
	sol.UpdatedAt = time.Now().UTC()

	blobs, err := marshalBlobs(sol)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE solicitations SET
			sol_num = $2, notice_type_id = $3, active = $4, na_flag = $5,
			compliant = $6, review_rec = $7, agency = $8, agency_id = $9,
			office = $10, title = $11, classification_code = $12, naics_code = $13,
			set_aside = $14, url = $15, emails = $16, description = $17,
			date = $18, action_date = $19, action_status = $20, predictions = $21,
			history = $22, action = $23, parse_status = $24, search_text = $25,
			num_docs = $26, updated_at = $27
		 WHERE id = $1`,
		sol.ID, sol.SolNum, sol.NoticeTypeID, sol.Active, sol.NAFlag, sol.Compliant,
		string(sol.ReviewRec), sol.Agency, sol.AgencyID, sol.Office, sol.Title,
		sol.Classification, sol.NAICSCode, sol.SetAside, sol.URL, blobs.emails,
		sol.Description, nullTime(sol.Date), sol.ActionDate, sol.ActionStatus,
		blobs.predictions, blobs.history, blobs.action, blobs.parseStatus,
		sol.SearchText, sol.NumDocs, sol.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update solicitation %s", sol.SolNum)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: solicitation not found: %s", sol.ID)
	}
	return nil
}

type solicitationBlobs struct {
	emails      []byte
	predictions []byte
	history     []byte
	action      []byte
	parseStatus []byte
}

func marshalBlobs(sol *model.Solicitation) (solicitationBlobs, error) {
	var b solicitationBlobs
	var err error

	emails := sol.Emails
	if emails == nil {
		emails = []string{}
	}
	if b.emails, err = json.Marshal(emails); err != nil {
		return b, eris.Wrap(err, "store: marshal emails")
	}
	if b.predictions, err = json.Marshal(sol.Predictions); err != nil {
		return b, eris.Wrap(err, "store: marshal predictions")
	}
	history := sol.History
	if history == nil {
		history = []model.AuditEntry{}
	}
	if b.history, err = json.Marshal(history); err != nil {
		return b, eris.Wrap(err, "store: marshal history")
	}
	action := sol.Action
	if action == nil {
		action = []model.AuditEntry{}
	}
	if b.action, err = json.Marshal(action); err != nil {
		return b, eris.Wrap(err, "store: marshal action")
	}
	parseStatus := sol.ParseStatus
	if parseStatus == nil {
		parseStatus = []model.ParseStatusEntry{}
	}
	if b.parseStatus, err = json.Marshal(parseStatus); err != nil {
		return b, eris.Wrap(err, "store: marshal parse status")
	}
	return b, nil
}

func scanSolicitation(row pgx.Row) (*model.Solicitation, error) {
	var (
		sol                                              model.Solicitation
		reviewRec                                        *string
		agency, office, title, classification            *string
		naics, setAside, urlCol, description, actionStat *string
		searchText                                       *string
		date                                             *time.Time
		emailsJSON, predictionsJSON                      []byte
		historyJSON, actionJSON, parseStatusJSON         []byte
	)

	err := row.Scan(
		&sol.ID, &sol.SolNum, &sol.NoticeTypeID, &sol.Active, &sol.NAFlag,
		&sol.Compliant, &reviewRec, &agency, &sol.AgencyID, &office, &title,
		&classification, &naics, &setAside, &urlCol, &emailsJSON, &description,
		&date, &sol.ActionDate, &actionStat, &predictionsJSON, &historyJSON,
		&actionJSON, &parseStatusJSON, &searchText, &sol.NumDocs,
		&sol.CreatedAt, &sol.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sol.ReviewRec = model.ReviewRec(deref(reviewRec))
	sol.Agency = deref(agency)
	sol.Office = deref(office)
	sol.Title = deref(title)
	sol.Classification = deref(classification)
	sol.NAICSCode = deref(naics)
	sol.SetAside = deref(setAside)
	sol.URL = deref(urlCol)
	sol.Description = deref(description)
	sol.ActionStatus = deref(actionStat)
	sol.SearchText = deref(searchText)
	if date != nil {
		sol.Date = *date
	}

	if err := json.Unmarshal(emailsJSON, &sol.Emails); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal emails")
	}
	if err := json.Unmarshal(predictionsJSON, &sol.Predictions); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal predictions")
	}
	if err := json.Unmarshal(historyJSON, &sol.History); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal history")
	}
	if err := json.Unmarshal(actionJSON, &sol.Action); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal action")
	}
	if err := json.Unmarshal(parseStatusJSON, &sol.ParseStatus); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal parse status")
	}
	return &sol, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
