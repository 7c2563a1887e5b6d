// Package reconcile merges normalized notices into persistent solicitation
// state and keeps that state honest against the authoritative snapshot. It is
// the only writer of solicitations: ingestion merges run through Reconciler,
// liveness corrections through Sweeper, each notice or check inside its own
// transactional unit of work so one bad record never takes down the batch.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/model"
	"github.com/sells-group/solwatch/internal/score"
	"github.com/sells-group/solwatch/internal/store"
)

// Gateway is the persistence surface one unit of work sees. *store.Store
// satisfies it directly; inside a transaction the transaction-scoped store
// does.
type Gateway interface {
	GetBySolNum(ctx context.Context, solNum string) (*model.Solicitation, error)
	InsertSolicitation(ctx context.Context, sol *model.Solicitation) error
	UpdateSolicitation(ctx context.Context, sol *model.Solicitation) error
	ListAttachments(ctx context.Context, solicitationID string) ([]model.Attachment, error)
	InsertAttachment(ctx context.Context, solicitationID string, att *model.Attachment) error
	TouchAttachment(ctx context.Context, id string) error
	NoticeTypeID(ctx context.Context, name string) (int, error)
	ResolveAgency(ctx context.Context, name string) (*model.Agency, error)
	UpsertPrediction(ctx context.Context, solNum, value string, rec model.ReviewRec) error
	DeletePrediction(ctx context.Context, solNum string) error
}

// Units runs a function inside one transactional unit of work. Everything the
// function does through the Gateway commits or rolls back together.
type Units interface {
	InUnit(ctx context.Context, fn func(ctx context.Context, g Gateway) error) error
}

// StoreUnits adapts a *store.Store into Units, one transaction per unit.
type StoreUnits struct {
	Store *store.Store
}

func (u StoreUnits) InUnit(ctx context.Context, fn func(ctx context.Context, g Gateway) error) error {
	return u.Store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		return fn(ctx, tx)
	})
}

const (
	auditTimeFormat = "2006-01-02 15:04:05"

	actionPosted  = "Solicitation Posted"
	actionUpdated = "Solicitation Updated on SAM"
)

// Summary counts the outcomes of one ingestion run.
type Summary struct {
	Notices int
	Created int
	Updated int
	Errors  int
}

// Reconciler merges notices into solicitation rows.
type Reconciler struct {
	units Units
	now   func() time.Time
	log   *zap.Logger
}

func New(units Units) *Reconciler {
	return &Reconciler{
		units: units,
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "reconcile")),
	}
}

// Reconcile merges each notice in its own transaction, sequentially. A failed
// merge is logged with its solicitation number and counted; the rest of the
// batch proceeds. Append ordering of the audit arrays depends on this
// per-solicitation serialization.
func (r *Reconciler) Reconcile(ctx context.Context, notices []model.Notice) Summary {
	sum := Summary{Notices: len(notices)}
	for i := range notices {
		n := &notices[i]

		var created bool
		err := r.units.InUnit(ctx, func(ctx context.Context, g Gateway) error {
			var err error
			created, err = r.merge(ctx, g, n)
			return err
		})
		if err != nil {
			r.log.Error("merge failed",
				zap.String("sol_num", n.SolNum), zap.Error(err))
			sum.Errors++
			continue
		}
		if created {
			sum.Created++
		} else {
			sum.Updated++
		}
	}
	r.log.Info("reconciliation finished",
		zap.Int("notices", sum.Notices), zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated), zap.Int("errors", sum.Errors))
	return sum
}

// merge applies one notice to its solicitation row, creating the row on first
// sighting. Returns whether the row was created.
func (r *Reconciler) merge(ctx context.Context, g Gateway, n *model.Notice) (bool, error) {
	now := r.now().UTC()
	stamp := now.Format(auditTimeFormat)

	sol, err := g.GetBySolNum(ctx, n.SolNum)
	if err != nil {
		return false, err
	}
	created := sol == nil
	if created {
		sol = &model.Solicitation{
			SolNum:      n.SolNum,
			Active:      true,
			Predictions: model.NewPredictions(),
			History:     []model.AuditEntry{},
			Action:      []model.AuditEntry{},
		}
	}
	prevDate := sol.Date

	// Scalar fields are overwritten wholesale; the audit arrays below are the
	// only merge-style state.
	typeID, err := g.NoticeTypeID(ctx, string(n.NoticeType))
	if err != nil {
		return created, err
	}
	sol.NoticeTypeID = typeID
	sol.NoticeType = string(n.NoticeType)
	sol.Agency = n.Agency
	sol.Office = n.Office
	sol.Title = n.Subject
	sol.Classification = n.ClassificationCode
	sol.NAICSCode = n.NAICSCode
	sol.SetAside = n.SetAside
	sol.URL = n.URL
	sol.Emails = n.Emails
	sol.Description = n.Description
	sol.Date = n.PostedDate

	// An agency-mapping miss never fails the record; the raw feed string
	// stands until an alias is added.
	agency, err := g.ResolveAgency(ctx, n.Agency)
	switch {
	case err != nil:
		r.log.Warn("agency lookup failed",
			zap.String("sol_num", n.SolNum), zap.String("agency", n.Agency),
			zap.Error(err))
	case agency == nil:
		r.log.Debug("agency not mapped", zap.String("agency", n.Agency))
	default:
		sol.AgencyID = &agency.ID
		sol.Agency = agency.Name
	}

	if created {
		sol.Action = append(sol.Action, model.AuditEntry{
			Date: stamp, Action: actionPosted, Status: "complete",
		})
		sol.ActionDate = &now
		sol.ActionStatus = actionPosted
	} else if n.PostedDate.After(prevDate) {
		sol.History = append(sol.History, model.AuditEntry{
			Date: stamp, Action: actionUpdated,
		})
	}

	// The row has to exist before its attachments can reference it.
	if created {
		if err := g.InsertSolicitation(ctx, sol); err != nil {
			return created, err
		}
	}

	if err := r.upsertAttachments(ctx, g, sol, n, stamp); err != nil {
		return created, err
	}

	v := score.Compose(n.Attachments)
	sol.ReviewRec = v.ReviewRec
	sol.Compliant = v.Compliant
	color := v.ReviewRec.Color()
	sol.Predictions.Value = color
	sol.Predictions.Sec508 = color
	if n.EstarEnabled {
		// Placeholder until a real estar model lands.
		sol.Predictions.Estar = model.ColorGrey
	}
	sol.Predictions.History = append(sol.Predictions.History, model.PredictionSnapshot{
		Date:   stamp,
		Value:  sol.Predictions.Value,
		Sec508: sol.Predictions.Sec508,
		Estar:  sol.Predictions.Estar,
	})

	sol.RecomputeSearchText()

	if err := g.UpdateSolicitation(ctx, sol); err != nil {
		return created, err
	}
	if err := g.UpsertPrediction(ctx, sol.SolNum, sol.Predictions.Value, sol.ReviewRec); err != nil {
		return created, err
	}
	return created, nil
}

// upsertAttachments writes this event's attachments under the solicitation,
// keyed by filename. Filenames already on file are only touched; their stored
// content stands. parse_status and num_docs reflect this event alone, and a
// notice with nothing attached forces na_flag.
func (r *Reconciler) upsertAttachments(ctx context.Context, g Gateway, sol *model.Solicitation, n *model.Notice, stamp string) error {
	known := map[string]string{}
	existing, err := g.ListAttachments(ctx, sol.ID)
	if err != nil {
		return err
	}
	for _, att := range existing {
		known[att.Filename] = att.ID
	}

	parse := make([]model.ParseStatusEntry, 0, len(n.Attachments))
	for i := range n.Attachments {
		att := &n.Attachments[i]
		if id, ok := known[att.Filename]; ok {
			if err := g.TouchAttachment(ctx, id); err != nil {
				return err
			}
			att.ID = id
		} else if err := g.InsertAttachment(ctx, sol.ID, att); err != nil {
			return eris.Wrapf(err, "reconcile: attach %s", att.Filename)
		}

		status := model.ParseError
		if att.MachineReadable {
			status = model.ParseOK
		}
		parse = append(parse, model.ParseStatusEntry{
			ID:        att.ID,
			Name:      att.Filename,
			Status:    status,
			Timestamp: stamp,
			URL:       att.URL,
		})
	}

	sol.ParseStatus = parse
	sol.NumDocs = len(n.Attachments)
	sol.NAFlag = len(n.Attachments) == 0
	return nil
}
