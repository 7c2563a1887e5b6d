package reconcile

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/solwatch/internal/model"
)

// fakeGateway is an in-memory stand-in for the store. Each InUnit call runs
// directly against the maps; rollback is not simulated, which is fine for
// asserting merge outcomes and error isolation counts.
type fakeGateway struct {
	sols        map[string]*model.Solicitation
	attachments map[string][]model.Attachment
	typeIDs     map[string]int
	agencies    map[string]model.Agency
	projections map[string]string

	candidates []string
	failGetFor string
	touched    int
	nextAttID  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sols:        map[string]*model.Solicitation{},
		attachments: map[string][]model.Attachment{},
		typeIDs:     map[string]int{},
		agencies:    map[string]model.Agency{},
		projections: map[string]string{},
	}
}

func (f *fakeGateway) InUnit(ctx context.Context, fn func(ctx context.Context, g Gateway) error) error {
	return fn(ctx, f)
}

func (f *fakeGateway) ListSweepCandidates(ctx context.Context, activeCutoff, inactiveCutoff time.Time, limit int) ([]string, error) {
	if len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeGateway) GetBySolNum(ctx context.Context, solNum string) (*model.Solicitation, error) {
	if strings.EqualFold(solNum, f.failGetFor) {
		return nil, eris.New("connection reset")
	}
	sol, ok := f.sols[strings.ToLower(solNum)]
	if !ok {
		return nil, nil
	}
	cp := *sol
	return &cp, nil
}

func (f *fakeGateway) InsertSolicitation(ctx context.Context, sol *model.Solicitation) error {
	if sol.ID == "" {
		sol.ID = "sol-" + strings.ToLower(sol.SolNum)
	}
	cp := *sol
	f.sols[strings.ToLower(sol.SolNum)] = &cp
	return nil
}

func (f *fakeGateway) UpdateSolicitation(ctx context.Context, sol *model.Solicitation) error {
	if _, ok := f.sols[strings.ToLower(sol.SolNum)]; !ok {
		return eris.Errorf("not found: %s", sol.SolNum)
	}
	cp := *sol
	f.sols[strings.ToLower(sol.SolNum)] = &cp
	return nil
}

func (f *fakeGateway) ListAttachments(ctx context.Context, solicitationID string) ([]model.Attachment, error) {
	return f.attachments[solicitationID], nil
}

func (f *fakeGateway) InsertAttachment(ctx context.Context, solicitationID string, att *model.Attachment) error {
	f.nextAttID++
	att.ID = fmt.Sprintf("att-%d", f.nextAttID)
	f.attachments[solicitationID] = append(f.attachments[solicitationID], *att)
	return nil
}

func (f *fakeGateway) TouchAttachment(ctx context.Context, id string) error {
	f.touched++
	return nil
}

func (f *fakeGateway) NoticeTypeID(ctx context.Context, name string) (int, error) {
	if id, ok := f.typeIDs[name]; ok {
		return id, nil
	}
	id := len(f.typeIDs) + 1
	f.typeIDs[name] = id
	return id, nil
}

func (f *fakeGateway) ResolveAgency(ctx context.Context, name string) (*model.Agency, error) {
	a, ok := f.agencies[name]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeGateway) UpsertPrediction(ctx context.Context, solNum, value string, rec model.ReviewRec) error {
	f.projections[strings.ToLower(solNum)] = value
	return nil
}

func (f *fakeGateway) DeletePrediction(ctx context.Context, solNum string) error {
	delete(f.projections, strings.ToLower(solNum))
	return nil
}

func newTestReconciler(g *fakeGateway) *Reconciler {
	r := New(g)
	r.now = func() time.Time {
		return time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return r
}

func intPtr(v int) *int { return &v }

func compliantNotice() model.Notice {
	return model.Notice{
		NoticeType: model.TypeSolicitation,
		SolNum:     "FA8601-20-R-0001",
		Agency:     "DEPARTMENT OF THE AIR FORCE",
		Office:     "AFMC",
		Subject:    "Grounds Maintenance",
		PostedDate: time.Date(2020, 5, 30, 0, 0, 0, 0, time.UTC),
		Attachments: []model.Attachment{
			{Filename: "sow.pdf", URL: "https://example.gov/sow.pdf",
				Text: "statement of work", MachineReadable: true, Prediction: intPtr(1)},
			{Filename: "wage.pdf", URL: "https://example.gov/wage.pdf",
				Text: "wage determination", MachineReadable: true, Prediction: intPtr(0)},
		},
	}
}

func TestReconcile_CreatesSolicitation(t *testing.T) {
	g := newFakeGateway()
	r := newTestReconciler(g)

	sum := r.Reconcile(context.Background(), []model.Notice{compliantNotice()})
	assert.Equal(t, Summary{Notices: 1, Created: 1}, sum)

	sol := g.sols["fa8601-20-r-0001"]
	require.NotNil(t, sol)
	assert.True(t, sol.Active)
	assert.False(t, sol.NAFlag)
	assert.Equal(t, "Solicitation", sol.NoticeType)
	assert.Equal(t, model.RecCompliant, sol.ReviewRec)
	require.NotNil(t, sol.Compliant)
	assert.Equal(t, 1, *sol.Compliant)

	// First sighting records a lifecycle action, not an update event.
	require.Len(t, sol.Action, 1)
	assert.Equal(t, "Solicitation Posted", sol.Action[0].Action)
	assert.Equal(t, "complete", sol.Action[0].Status)
	assert.Equal(t, "Solicitation Posted", sol.ActionStatus)
	require.NotNil(t, sol.ActionDate)
	assert.Empty(t, sol.History)

	assert.Equal(t, model.ColorGreen, sol.Predictions.Value)
	assert.Equal(t, model.ColorGreen, sol.Predictions.Sec508)
	require.Len(t, sol.Predictions.History, 1)

	assert.Equal(t, 2, sol.NumDocs)
	require.Len(t, sol.ParseStatus, 2)
	assert.Equal(t, model.ParseOK, sol.ParseStatus[0].Status)
	assert.Len(t, g.attachments[sol.ID], 2)

	assert.Equal(t, model.ColorGreen, g.projections["fa8601-20-r-0001"])
	assert.Contains(t, sol.SearchText, "grounds maintenance")
	assert.NotContains(t, sol.SearchText, "none")
}

func TestReconcile_ReingestIsIdempotent(t *testing.T) {
	g := newFakeGateway()
	r := newTestReconciler(g)

	n := compliantNotice()
	r.Reconcile(context.Background(), []model.Notice{n})

	again := compliantNotice()
	sum := r.Reconcile(context.Background(), []model.Notice{again})
	assert.Equal(t, Summary{Notices: 1, Updated: 1}, sum)

	require.Len(t, g.sols, 1)
	sol := g.sols["fa8601-20-r-0001"]

	// Same posted date: no update entry, and attachments are touched rather
	// than duplicated.
	assert.Empty(t, sol.History)
	assert.Len(t, sol.Action, 1)
	assert.Len(t, g.attachments[sol.ID], 2)
	assert.Equal(t, 2, g.touched)
	assert.Equal(t, 2, sol.NumDocs)
	// The prediction snapshot trail grows every event.
	assert.Len(t, sol.Predictions.History, 2)
}

func TestReconcile_LaterPostingAppendsHistory(t *testing.T) {
	g := newFakeGateway()
	r := newTestReconciler(g)

	r.Reconcile(context.Background(), []model.Notice{compliantNotice()})

	amended := compliantNotice()
	amended.PostedDate = amended.PostedDate.AddDate(0, 0, 3)
	r.Reconcile(context.Background(), []model.Notice{amended})

	sol := g.sols["fa8601-20-r-0001"]
	require.Len(t, sol.History, 1)
	assert.Equal(t, "Solicitation Updated on SAM", sol.History[0].Action)
	// The lifecycle action from creation is untouched.
	assert.Len(t, sol.Action, 1)
}

func TestReconcile_NoAttachmentsMarksNotApplicable(t *testing.T) {
	g := newFakeGateway()
	r := newTestReconciler(g)

	n := compliantNotice()
	n.Attachments = nil
	r.Reconcile(context.Background(), []model.Notice{n})

	sol := g.sols["fa8601-20-r-0001"]
	assert.True(t, sol.NAFlag)
	assert.Equal(t, model.RecNotApplicable, sol.ReviewRec)
	assert.Nil(t, sol.Compliant)
	assert.Equal(t, model.ColorGrey, sol.Predictions.Value)
	assert.Equal(t, 0, sol.NumDocs)
	assert.Empty(t, sol.ParseStatus)
}

func TestReconcile_UnreadableAttachmentsCannotEvaluate(t *testing.T) {
	g := newFakeGateway()
	r := newTestReconciler(g)

	n := compliantNotice()
	n.Attachments = []model.Attachment{
		{Filename: "scan.pdf", URL: "https://example.gov/scan.pdf"},
	}
	r.Reconcile(context.Background(), []model.Notice{n})

	sol := g.sols["fa8601-20-r-0001"]
	assert.False(t, sol.NAFlag)
	assert.Equal(t, model.RecCannotEvaluate, sol.ReviewRec)
	assert.Nil(t, sol.Compliant)
	assert.Equal(t, model.ColorYellow, sol.Predictions.Value)
	require.Len(t, sol.ParseStatus, 1)
	assert.Equal(t, model.ParseError, sol.ParseStatus[0].Status)
}

func TestReconcile_ResolvesAgencyAlias(t *testing.T) {
	g := newFakeGateway()
	g.agencies["DEPARTMENT OF THE AIR FORCE"] = model.Agency{
		ID: "ag-af", Name: "Department of the Air Force",
	}
	r := newTestReconciler(g)

	r.Reconcile(context.Background(), []model.Notice{compliantNotice()})

	sol := g.sols["fa8601-20-r-0001"]
	require.NotNil(t, sol.AgencyID)
	assert.Equal(t, "ag-af", *sol.AgencyID)
	assert.Equal(t, "Department of the Air Force", sol.Agency)
}

func TestReconcile_UnknownAgencyKeptAsGiven(t *testing.T) {
	g := newFakeGateway()
	r := newTestReconciler(g)

	r.Reconcile(context.Background(), []model.Notice{compliantNotice()})

	sol := g.sols["fa8601-20-r-0001"]
	assert.Nil(t, sol.AgencyID)
	assert.Equal(t, "DEPARTMENT OF THE AIR FORCE", sol.Agency)
}

func TestReconcile_EstarStubWhenEnabled(t *testing.T) {
	g := newFakeGateway()
	r := newTestReconciler(g)

	n := compliantNotice()
	n.EstarEnabled = true
	r.Reconcile(context.Background(), []model.Notice{n})

	sol := g.sols["fa8601-20-r-0001"]
	assert.Equal(t, model.ColorGrey, sol.Predictions.Estar)
	require.Len(t, sol.Predictions.History, 1)
	assert.Equal(t, model.ColorGrey, sol.Predictions.History[0].Estar)
}

func TestReconcile_BadRecordDoesNotAbortBatch(t *testing.T) {
	g := newFakeGateway()
	g.failGetFor = "BROKEN-001"
	r := newTestReconciler(g)

	broken := compliantNotice()
	broken.SolNum = "BROKEN-001"
	good := compliantNotice()

	sum := r.Reconcile(context.Background(), []model.Notice{broken, good})
	assert.Equal(t, Summary{Notices: 2, Created: 1, Errors: 1}, sum)
	assert.NotNil(t, g.sols["fa8601-20-r-0001"])
	assert.Nil(t, g.sols["broken-001"])
}
