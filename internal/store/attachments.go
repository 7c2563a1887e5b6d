package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/solwatch/internal/model"
)

// ListAttachments returns the attachments owned by a solicitation, without
// their extracted text. Reconciliation only needs identity and scoring
// fields; text blobs can run to megabytes.
func (s *Store) ListAttachments(ctx context.Context, solicitationID string) ([]model.Attachment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, filename, url, machine_readable, prediction, decision_boundary,
			validation, trained
		 FROM attachments WHERE solicitation_id = $1 ORDER BY created_at`,
		solicitationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list attachments for %s", solicitationID)
	}
	defer rows.Close()

	var attachments []model.Attachment
	for rows.Next() {
		var att model.Attachment
		var url *string
		if err := rows.Scan(&att.ID, &att.Filename, &url, &att.MachineReadable,
			&att.Prediction, &att.DecisionBoundary, &att.Validation, &att.Trained); err != nil {
			return nil, eris.Wrap(err, "store: scan attachment")
		}
		att.URL = deref(url)
		attachments = append(attachments, att)
	}
	return attachments, eris.Wrap(rows.Err(), "store: iterate attachments")
}

// InsertAttachment creates an attachment row under the solicitation,
// assigning an id if the caller has not.
func (s *Store) InsertAttachment(ctx context.Context, solicitationID string, att *model.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.db.Exec(ctx,
		`INSERT INTO attachments (id, solicitation_id, filename, url, text,
			machine_readable, prediction, decision_boundary, validation, trained,
			created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		att.ID, solicitationID, att.Filename, att.URL, att.Text,
		att.MachineReadable, att.Prediction, att.DecisionBoundary,
		att.Validation, att.Trained, now, now,
	)
	return eris.Wrapf(err, "store: insert attachment %s", att.Filename)
}

// TouchAttachment bumps updated_at on an existing attachment. Used when a
// re-ingested notice carries a filename already on file; content is not
// re-written.
func (s *Store) TouchAttachment(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE attachments SET updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "store: touch attachment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: attachment not found: %s", id)
	}
	return nil
}
