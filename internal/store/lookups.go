package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/model"
)

// NoticeTypeID resolves a notice-type name to its id, creating the row on
// first sight. A creation is logged: the upstream type vocabulary is small
// and stable, so a new name usually means a feed format change worth a look.
// Resolved ids are memoized for the Store's lifetime.
func (s *Store) NoticeTypeID(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	if id, ok := s.typeIDs[name]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	var id int
	var created bool
	err := s.db.QueryRow(ctx,
		`INSERT INTO notice_types (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, (xmax = 0) AS created`,
		name,
	).Scan(&id, &created)
	if err != nil {
		return 0, eris.Wrapf(err, "store: resolve notice type %q", name)
	}
	if created {
		s.log.Warn("created unrecognized notice type",
			zap.String("name", name),
			zap.Int("id", id),
		)
	}

	s.mu.Lock()
	s.typeIDs[name] = id
	s.mu.Unlock()
	return id, nil
}

// ResolveAgency looks up the canonical agency record by name or alias.
// Returns (nil, nil) when the agency is unknown; notices from unknown
// agencies still merge, just without a canonical reference.
func (s *Store) ResolveAgency(ctx context.Context, name string) (*model.Agency, error) {
	if name == "" {
		return nil, nil
	}

	var a model.Agency
	err := s.db.QueryRow(ctx,
		`SELECT id, name FROM agencies WHERE name = $1 OR aliases ? $1 LIMIT 1`,
		name,
	).Scan(&a.ID, &a.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: look up agency %q", name)
	}
	return &a, nil
}
