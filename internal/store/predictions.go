package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/solwatch/internal/model"
)

// UpsertPrediction writes the derived prediction projection row for a
// solicitation number. The projection is what the search frontend reads; it
// is rebuilt from the solicitation on every merge and deleted when the
// solicitation leaves the live set.
func (s *Store) UpsertPrediction(ctx context.Context, solNum, value string, rec model.ReviewRec) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO predictions (sol_num, value, review_rec, updated_at)
		 VALUES (LOWER($1), $2, $3, $4)
		 ON CONFLICT (sol_num) DO UPDATE SET
			value = EXCLUDED.value,
			review_rec = EXCLUDED.review_rec,
			updated_at = EXCLUDED.updated_at`,
		solNum, value, string(rec), time.Now().UTC(),
	)
	return eris.Wrapf(err, "store: upsert prediction %s", solNum)
}

// DeletePrediction removes the projection row for a solicitation number, if
// present.
func (s *Store) DeletePrediction(ctx context.Context, solNum string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM predictions WHERE sol_num = LOWER($1)`,
		solNum,
	)
	return eris.Wrapf(err, "store: delete prediction %s", solNum)
}
