package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/config"
	"github.com/sells-group/solwatch/internal/model"
	"github.com/sells-group/solwatch/internal/snapshot"
)

// SweepStore is what the periodic sweep needs from persistence: units of work
// plus the bounded candidate listing.
type SweepStore interface {
	Units
	ListSweepCandidates(ctx context.Context, activeCutoff, inactiveCutoff time.Time, limit int) ([]string, error)
}

// ListSweepCandidates lets StoreUnits satisfy SweepStore.
func (u StoreUnits) ListSweepCandidates(ctx context.Context, activeCutoff, inactiveCutoff time.Time, limit int) ([]string, error) {
	return u.Store.ListSweepCandidates(ctx, activeCutoff, inactiveCutoff, limit)
}

// SnapshotSource answers whether a solicitation number is still live
// upstream. *snapshot.Source satisfies it.
type SnapshotSource interface {
	Lookup(ctx context.Context, solNum string) (*snapshot.Record, error)
}

// SweepSummary counts the outcomes of one sweep pass.
type SweepSummary struct {
	Checked     int
	Deactivated int
	Corrected   int
	Errors      int
}

// Sweeper reconciles persisted solicitations against the authoritative
// snapshot: rows absent from the snapshot go inactive, rows whose notice type
// drifted get corrected and queued for re-scoring.
type Sweeper struct {
	db   SweepStore
	snap SnapshotSource
	cfg  config.ReconcileConfig
	now  func() time.Time
	log  *zap.Logger
}

func NewSweeper(db SweepStore, snap SnapshotSource, cfg config.ReconcileConfig) *Sweeper {
	return &Sweeper{
		db:   db,
		snap: snap,
		cfg:  cfg,
		now:  time.Now,
		log:  zap.L().With(zap.String("component", "sweep")),
	}
}

type checkOutcome int

const (
	checkNoop checkOutcome = iota
	checkDeactivated
	checkCorrected
)

// Sweep runs one bounded pass. Each candidate is checked in its own
// transaction; a failed check is logged and the pass moves on.
func (s *Sweeper) Sweep(ctx context.Context) SweepSummary {
	now := s.now().UTC()
	activeCutoff := now.AddDate(0, 0, -s.cfg.ActiveAgeDays)
	inactiveCutoff := now.AddDate(0, 0, -s.cfg.InactiveAgeDays)

	solNums, err := s.db.ListSweepCandidates(ctx, activeCutoff, inactiveCutoff, s.cfg.MaxChecks)
	if err != nil {
		s.log.Error("listing sweep candidates failed", zap.Error(err))
		return SweepSummary{Errors: 1}
	}

	sum := SweepSummary{Checked: len(solNums)}
	for _, solNum := range solNums {
		var outcome checkOutcome
		err := s.db.InUnit(ctx, func(ctx context.Context, g Gateway) error {
			var err error
			outcome, err = s.check(ctx, g, solNum, now)
			return err
		})
		if err != nil {
			s.log.Error("sweep check failed",
				zap.String("sol_num", solNum), zap.Error(err))
			sum.Errors++
			continue
		}
		switch outcome {
		case checkDeactivated:
			sum.Deactivated++
		case checkCorrected:
			sum.Corrected++
		}
	}
	s.log.Info("sweep finished",
		zap.Int("checked", sum.Checked), zap.Int("deactivated", sum.Deactivated),
		zap.Int("corrected", sum.Corrected), zap.Int("errors", sum.Errors))
	return sum
}

func (s *Sweeper) check(ctx context.Context, g Gateway, solNum string, now time.Time) (checkOutcome, error) {
	sol, err := g.GetBySolNum(ctx, solNum)
	if err != nil {
		return checkNoop, err
	}
	if sol == nil {
		return checkNoop, nil
	}

	rec, err := s.snap.Lookup(ctx, solNum)
	if err != nil {
		return checkNoop, err
	}

	if rec == nil {
		wasActive := sol.Active
		sol.Active = false
		if err := g.UpdateSolicitation(ctx, sol); err != nil {
			return checkNoop, err
		}
		if err := g.DeletePrediction(ctx, sol.SolNum); err != nil {
			return checkNoop, err
		}
		if !wasActive {
			return checkNoop, nil
		}
		return checkDeactivated, nil
	}

	typeID, err := g.NoticeTypeID(ctx, rec.NoticeType)
	if err != nil {
		return checkNoop, err
	}
	if typeID == sol.NoticeTypeID {
		return checkNoop, nil
	}

	sol.NoticeTypeID = typeID
	sol.NoticeType = rec.NoticeType
	sol.History = append(sol.History, model.AuditEntry{
		Date:   now.Format(auditTimeFormat),
		Action: "Notice type corrected to " + rec.NoticeType,
	})
	sol.RecomputeSearchText()
	if err := g.UpdateSolicitation(ctx, sol); err != nil {
		return checkNoop, err
	}
	// Dropping the projection forces downstream re-scoring under the new type.
	if err := g.DeletePrediction(ctx, sol.SolNum); err != nil {
		return checkNoop, err
	}
	return checkCorrected, nil
}
