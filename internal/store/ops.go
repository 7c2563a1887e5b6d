package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Stats summarizes the store for the status API and the retraining check.
type Stats struct {
	Total              int `json:"total"`
	Active             int `json:"active"`
	NotApplicable      int `json:"not_applicable"`
	Attachments        int `json:"attachments"`
	Validated          int `json:"validated"`
	ValidatedUntrained int `json:"validated_untrained"`
	Trained            int `json:"trained"`
}

// RetrainingNeeded reports whether enough new human-validated attachments
// have accumulated relative to the trained corpus to justify a training run.
func (st Stats) RetrainingNeeded() bool {
	if st.Trained == 0 {
		return st.ValidatedUntrained > 0
	}
	return float64(st.ValidatedUntrained)/float64(st.Trained) >= 0.2
}

// GetStats gathers aggregate counters.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM solicitations),
			(SELECT COUNT(*) FROM solicitations WHERE active),
			(SELECT COUNT(*) FROM solicitations WHERE na_flag),
			(SELECT COUNT(*) FROM attachments),
			(SELECT COUNT(*) FROM attachments WHERE validation IS NOT NULL),
			(SELECT COUNT(*) FROM attachments WHERE validation IS NOT NULL AND NOT trained),
			(SELECT COUNT(*) FROM attachments WHERE trained)`,
	).Scan(&st.Total, &st.Active, &st.NotApplicable, &st.Attachments,
		&st.Validated, &st.ValidatedUntrained, &st.Trained)
	if err != nil {
		return Stats{}, eris.Wrap(err, "store: gather stats")
	}
	return st, nil
}

// ListSweepCandidates returns solicitation numbers due for a liveness check:
// active rows last touched after activeCutoff, plus inactive rows last touched
// after inactiveCutoff. Least recently updated first, capped at limit, so the
// periodic sweep works through the backlog a bounded slice at a time.
func (s *Store) ListSweepCandidates(ctx context.Context, activeCutoff, inactiveCutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT sol_num FROM solicitations
		 WHERE (active AND updated_at > $1) OR (NOT active AND updated_at > $2)
		 ORDER BY updated_at ASC LIMIT $3`,
		activeCutoff.UTC(), inactiveCutoff.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list sweep candidates")
	}
	defer rows.Close()

	var solNums []string
	for rows.Next() {
		var sn string
		if err := rows.Scan(&sn); err != nil {
			return nil, eris.Wrap(err, "store: scan sweep candidate")
		}
		solNums = append(solNums, sn)
	}
	return solNums, eris.Wrap(rows.Err(), "store: iterate sweep candidates")
}

// SyncRecord is one row in the sync log.
type SyncRecord struct {
	Kind      string
	StartedAt time.Time
	Notices   int
	Created   int
	Updated   int
	Errors    int
	Detail    any
}

// LogSync records the outcome of one ingestion or reconciliation run.
func (s *Store) LogSync(ctx context.Context, rec SyncRecord) error {
	var detail []byte
	if rec.Detail != nil {
		var err error
		if detail, err = json.Marshal(rec.Detail); err != nil {
			return eris.Wrap(err, "store: marshal sync detail")
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO sync_log (id, kind, started_at, finished_at, notices, created, updated, errors, detail)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		uuid.New().String(), rec.Kind, rec.StartedAt.UTC(), time.Now().UTC(),
		rec.Notices, rec.Created, rec.Updated, rec.Errors, detail,
	)
	return eris.Wrap(err, "store: log sync")
}
