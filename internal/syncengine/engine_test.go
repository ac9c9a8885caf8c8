package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/database/queue"
	syncrepo "github.com/mrlokans/caresync/internal/database/sync"
	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/events"
	"github.com/mrlokans/caresync/internal/records"
	"github.com/mrlokans/caresync/internal/remote"
	"github.com/mrlokans/caresync/internal/session"
)

type call struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeRemote stands in for the remote service. It assigns sequential ids
// starting at 42 and can be told to fail by path prefix.
type fakeRemote struct {
	mu     sync.Mutex
	calls  []call
	nextID int
	fail   map[string]int // path prefix -> status
	auth   string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{nextID: 42, fail: map[string]int{}}
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	f.calls = append(f.calls, call{Method: r.Method, Path: r.URL.Path, Body: body})
	f.auth = r.Header.Get("Authorization")

	for prefix, status := range f.fail {
		if strings.HasPrefix(r.URL.Path, prefix) {
			w.WriteHeader(status)
			if status == http.StatusUnauthorized {
				fmt.Fprint(w, `{"error":"token expired"}`)
			} else {
				fmt.Fprint(w, `{"error":"unprocessable"}`)
			}
			return
		}
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
		return
	}

	id := f.nextID
	f.nextID++
	w.WriteHeader(http.StatusCreated)
	switch r.URL.Path {
	case "/sync/patients":
		fmt.Fprintf(w, `{"patient":{"id":%d}}`, id)
	case "/treatment-plans":
		fmt.Fprintf(w, `{"treatment_plan":{"id":"%d"}}`, id)
	default:
		fmt.Fprintf(w, `{"id":%d}`, id)
	}
}

func (f *fakeRemote) setFail(prefix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		delete(f.fail, prefix)
		return
	}
	f.fail[prefix] = status
}

func (f *fakeRemote) callsTo(method, prefix string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) all() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fixture struct {
	engine  *Engine
	records *records.Service
	store   *database.Store
	queue   *queue.Repository
	session *session.Context
	remote  *fakeRemote
	bus     *events.Bus
	busCh   <-chan events.Event
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "sync.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := newFakeRemote()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	sess := session.New()
	require.NoError(t, sess.SetToken("token-1"))

	bus := events.NewBus()
	ch, cancel := bus.Subscribe(256)
	t.Cleanup(cancel)

	store := db.Store()
	q := queue.NewRepository(db.DB)
	client := remote.NewClient(remote.Config{BaseURL: server.URL, Timeout: 2 * time.Second}, sess, bus)

	engine := NewEngine(Config{}, store, q, client, sess).
		WithProgress(syncrepo.NewRepository(db.DB)).
		WithPublisher(bus)

	return &fixture{
		engine:  engine,
		records: records.NewService(store, q),
		store:   store,
		queue:   q,
		session: sess,
		remote:  fake,
		bus:     bus,
		busCh:   ch,
	}
}

func (f *fixture) drain(t *testing.T) Report {
	t.Helper()
	report, err := f.engine.Drain(context.Background())
	require.NoError(t, err)
	return report
}

func (f *fixture) pending(t *testing.T) []entities.MutationQueueEntry {
	t.Helper()
	entries, err := f.queue.Pending(context.Background())
	require.NoError(t, err)
	return entries
}

// drainEvents returns every event published so far.
func (f *fixture) drainEvents() []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-f.busCh:
			out = append(out, e)
		default:
			return out
		}
	}
}

func countEvents(evs []events.Event, typ events.Type) int {
	n := 0
	for _, e := range evs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// assertSyncInvariants checks that synced entities have no queue entry and
// that every child with a remote id has a stored parent with one.
func assertSyncInvariants(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	queued := map[string]bool{}
	for _, e := range f.pending(t) {
		queued[string(e.EntityKind)+"/"+e.TargetLocalID] = true
	}

	for _, kind := range entities.Kinds() {
		info, _ := entities.LookupKind(kind)
		for rec, err := range f.store.Query(ctx, kind, database.Filter{IncludeDeleted: true}) {
			require.NoError(t, err)
			meta := rec.Meta()
			if meta.Synced {
				assert.False(t, queued[string(kind)+"/"+meta.LocalID], "%s %s is synced but still queued", kind, meta.LocalID)
			}
			if info.Parent != "" && meta.HasRemoteID() {
				parent, err := f.store.Get(ctx, info.Parent, rec.ParentLocalID())
				require.NoError(t, err, "%s %s outlived its parent", kind, meta.LocalID)
				assert.True(t, parent.Meta().HasRemoteID(), "%s %s synced before its parent", kind, meta.LocalID)
			}
		}
	}
}

func TestDrain_JaneDoeRoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Created offline
	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	require.Len(t, f.pending(t), 1)
	assert.False(t, p.Synced)

	report, err := f.engine.Drain(ctx)
	assert.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, SkippedOffline, report.Skipped)
	assert.Empty(t, f.remote.all())

	// Connectivity restored
	f.session.SetOnline(true)
	report = f.drain(t)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, int64(0), report.Remaining)

	got, err := database.GetAs[*entities.Patient](ctx, f.store, entities.KindPatient, p.LocalID)
	require.NoError(t, err)
	require.NotNil(t, got.RemoteID)
	assert.Equal(t, "42", *got.RemoteID)
	assert.True(t, got.Synced)
	assert.Empty(t, f.pending(t))

	creates := f.remote.callsTo(http.MethodPost, "/sync/patients")
	require.Len(t, creates, 1)
	assert.Equal(t, "Jane Doe", creates[0].Body["name"])
	assert.Equal(t, "Bearer token-1", f.remote.auth)

	evs := f.drainEvents()
	assert.Equal(t, 1, countEvents(evs, events.SyncCompleted))
	for _, e := range evs {
		if e.Type == events.SyncProgress {
			assert.Equal(t, int64(0), e.Pending)
			assert.NotNil(t, e.LastSuccessAt)
		}
	}
	assertSyncInvariants(t, f)
}

func TestDrain_ParentBeforeChild(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	plan, err := f.records.CreatePlan(ctx, records.PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	step, err := f.records.CreateStep(ctx, records.StepInput{PlanLocalID: plan.LocalID, Title: "Check BP"})
	require.NoError(t, err)

	f.session.SetOnline(true)
	report := f.drain(t)
	assert.Equal(t, 3, report.Synced)

	calls := f.remote.all()
	require.Len(t, calls, 3)
	assert.Equal(t, "/sync/patients", calls[0].Path)
	assert.Equal(t, "/treatment-plans", calls[1].Path)
	assert.Equal(t, "/plan-steps", calls[2].Path)

	// Parent remote ids are substituted for local references
	assert.Equal(t, "42", calls[1].Body["patient_id"])
	assert.Equal(t, "43", calls[2].Body["plan_id"])

	gotStep, err := database.GetAs[*entities.PlanStep](ctx, f.store, entities.KindPlanStep, step.LocalID)
	require.NoError(t, err)
	require.NotNil(t, gotStep.RemoteID)
	assert.Equal(t, "44", *gotStep.RemoteID)
	assertSyncInvariants(t, f)
}

func TestDrain_ParentNotYetSynced(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	plan, err := f.records.CreatePlan(ctx, records.PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)

	f.session.SetOnline(true)
	f.remote.setFail("/sync/patients", http.StatusInternalServerError)

	report := f.drain(t)
	assert.Equal(t, 2, report.Failed)

	entries := f.pending(t)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Retries)
	assert.Equal(t, "remote returned HTTP 500: unprocessable", entries[0].LastError)
	assert.Equal(t, plan.LocalID, entries[1].TargetLocalID)
	assert.Equal(t, 1, entries[1].Retries)
	assert.Equal(t, "parent not yet synced", entries[1].LastError)

	// The plan never reached the remote service
	assert.Empty(t, f.remote.callsTo(http.MethodPost, "/treatment-plans"))

	// Parent recovers on the next pass, and the child follows in the same pass
	f.remote.setFail("/sync/patients", 0)
	report = f.drain(t)
	assert.Equal(t, 2, report.Synced)
	assert.Empty(t, f.pending(t))

	plans := f.remote.callsTo(http.MethodPost, "/treatment-plans")
	require.Len(t, plans, 1)
	assert.Equal(t, "42", plans[0].Body["patient_id"])
	assertSyncInvariants(t, f)
}

func TestDrain_RetryCeilingEvictsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)

	f.session.SetOnline(true)
	f.remote.setFail("/sync/patients", http.StatusUnprocessableEntity)

	var reports []Report
	for range 5 {
		reports = append(reports, f.drain(t))
	}

	assert.Len(t, f.remote.callsTo(http.MethodPost, "/sync/patients"), 3)
	assert.Equal(t, 1, reports[0].Failed)
	assert.Equal(t, 1, reports[1].Failed)
	assert.Equal(t, 1, reports[2].Evicted)
	assert.Equal(t, 0, reports[3].Total)
	assert.Empty(t, f.pending(t))

	evs := f.drainEvents()
	require.Equal(t, 1, countEvents(evs, events.MutationEvicted))
	for _, e := range evs {
		if e.Type == events.MutationEvicted {
			assert.Equal(t, entities.KindPatient, e.Kind)
			assert.Equal(t, p.LocalID, e.LocalID)
			assert.Equal(t, entities.ActionCreate, e.Action)
			assert.Contains(t, e.Err, "unprocessable")
		}
	}

	// The local record survives the abandoned mutation, still dirty
	got, err := database.GetAs[*entities.Patient](ctx, f.store, entities.KindPatient, p.LocalID)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Nil(t, got.RemoteID)
}

func TestDrain_DuplicateCreateIsSentAsUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)

	f.session.SetOnline(true)
	f.drain(t)

	// Simulated duplicate delivery of the acknowledged create
	_, err = f.queue.Enqueue(ctx, entities.ActionCreate, entities.KindPatient, p.LocalID, map[string]any{"name": "Jane Doe"})
	require.NoError(t, err)

	report := f.drain(t)
	assert.Equal(t, 1, report.Synced)

	assert.Len(t, f.remote.callsTo(http.MethodPost, "/sync/patients"), 1)
	puts := f.remote.callsTo(http.MethodPut, "/sync/patients/42")
	assert.Len(t, puts, 1)

	got, err := database.GetAs[*entities.Patient](ctx, f.store, entities.KindPatient, p.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "42", *got.RemoteID)
	assert.True(t, got.Synced)
}

func TestDrain_CreateThenUpdateInOnePass(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	name := "Jane Smith"
	_, err = f.records.UpdatePatient(ctx, p.LocalID, records.PatientPatch{Name: &name})
	require.NoError(t, err)
	plan, err := f.records.CreatePlan(ctx, records.PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	diagnosis := "Stage 2 hypertension"
	_, err = f.records.UpdatePlan(ctx, plan.LocalID, records.PlanPatch{Diagnosis: &diagnosis})
	require.NoError(t, err)

	f.session.SetOnline(true)
	report := f.drain(t)
	assert.Equal(t, 4, report.Synced)

	puts := f.remote.callsTo(http.MethodPut, "/sync/patients/42")
	require.Len(t, puts, 1)
	assert.Equal(t, "Jane Smith", puts[0].Body["name"])

	// Updates of a child carry the parent reference too
	planPuts := f.remote.callsTo(http.MethodPut, "/treatment-plans/43")
	require.Len(t, planPuts, 1)
	assert.Equal(t, "Stage 2 hypertension", planPuts[0].Body["diagnosis"])
	assert.Equal(t, "42", planPuts[0].Body["patient_id"])

	got, err := database.GetAs[*entities.Patient](ctx, f.store, entities.KindPatient, p.LocalID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assertSyncInvariants(t, f)
}

func TestDrain_UpdateWithoutRemoteID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	// Lose the create so only the update remains
	_, err = f.queue.RemoveFor(ctx, entities.KindPatient, p.LocalID)
	require.NoError(t, err)
	name := "Jane Smith"
	_, err = f.records.UpdatePatient(ctx, p.LocalID, records.PatientPatch{Name: &name})
	require.NoError(t, err)

	f.session.SetOnline(true)
	report := f.drain(t)
	assert.Equal(t, 1, report.Failed)

	entries := f.pending(t)
	require.Len(t, entries, 1)
	assert.Equal(t, ErrMissingRemoteID.Error(), entries[0].LastError)
	assert.Empty(t, f.remote.all())
}

func TestDrain_Deletes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.session.SetOnline(true)

	t.Run("never synced entity is purged locally", func(t *testing.T) {
		p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Never Synced"})
		require.NoError(t, err)
		// The create was abandoned, so the remote service never saw it
		_, err = f.queue.RemoveFor(ctx, entities.KindPatient, p.LocalID)
		require.NoError(t, err)
		require.NoError(t, f.records.DeletePatient(ctx, p.LocalID))

		report := f.drain(t)
		assert.Empty(t, f.remote.all())
		assert.Equal(t, 1, report.Synced)

		_, err = f.store.Get(ctx, entities.KindPatient, p.LocalID)
		assert.ErrorIs(t, err, database.ErrNotFound)
		assert.Empty(t, f.pending(t))
	})

	t.Run("synced entity is deleted remotely then purged", func(t *testing.T) {
		p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
		require.NoError(t, err)
		f.drain(t)

		require.NoError(t, f.records.DeletePatient(ctx, p.LocalID))
		report := f.drain(t)
		assert.Equal(t, 1, report.Synced)

		deletes := f.remote.callsTo(http.MethodDelete, "/sync/patients/")
		require.Len(t, deletes, 1)
		assert.Equal(t, "/sync/patients/42", deletes[0].Path)

		_, err = f.store.Get(ctx, entities.KindPatient, p.LocalID)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestDrain_DeletePatientTakesItsTree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.session.SetOnline(true)

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	plan, err := f.records.CreatePlan(ctx, records.PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	step, err := f.records.CreateStep(ctx, records.StepInput{PlanLocalID: plan.LocalID, Title: "Check BP"})
	require.NoError(t, err)
	f.drain(t)

	require.NoError(t, f.records.DeletePatient(ctx, p.LocalID))
	report := f.drain(t)
	assert.Equal(t, 3, report.Synced)
	assert.Empty(t, f.pending(t))

	deletes := f.remote.callsTo(http.MethodDelete, "/")
	require.Len(t, deletes, 3)
	assert.Equal(t, "/plan-steps/44", deletes[0].Path)
	assert.Equal(t, "/treatment-plans/43", deletes[1].Path)
	assert.Equal(t, "/sync/patients/42", deletes[2].Path)

	for kind, localID := range map[entities.Kind]string{
		entities.KindPatient:       p.LocalID,
		entities.KindTreatmentPlan: plan.LocalID,
		entities.KindPlanStep:      step.LocalID,
	} {
		_, err := f.store.Get(ctx, kind, localID)
		assert.ErrorIs(t, err, database.ErrNotFound, "%s still stored", kind)
	}
	assertSyncInvariants(t, f)
}

func TestDrain_ParentDeleteWaitsForChildren(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.session.SetOnline(true)

	p, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	plan, err := f.records.CreatePlan(ctx, records.PlanInput{PatientLocalID: p.LocalID, Diagnosis: "Hypertension"})
	require.NoError(t, err)
	f.drain(t)

	require.NoError(t, f.records.DeletePatient(ctx, p.LocalID))
	f.remote.setFail("/treatment-plans/", http.StatusInternalServerError)

	report := f.drain(t)
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, f.remote.callsTo(http.MethodDelete, "/sync/patients/"))

	entries := f.pending(t)
	require.Len(t, entries, 2)
	assert.Equal(t, plan.LocalID, entries[0].TargetLocalID)
	assert.Equal(t, p.LocalID, entries[1].TargetLocalID)
	assert.Equal(t, ErrChildrenPending.Error(), entries[1].LastError)
	assertSyncInvariants(t, f)

	f.remote.setFail("/treatment-plans/", 0)
	report = f.drain(t)
	assert.Equal(t, 2, report.Synced)
	assert.Len(t, f.remote.callsTo(http.MethodDelete, "/sync/patients/42"), 1)
	assert.Empty(t, f.pending(t))
}

func TestDrain_AcknowledgeFailureIsRecorded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.session.SetOnline(true)

	_, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	require.NoError(t, f.store.DB().Exec(`CREATE TRIGGER reject_remote_id BEFORE UPDATE ON patients
		WHEN NEW.remote_id IS NOT NULL BEGIN SELECT RAISE(ABORT, 'disk is full'); END`).Error)

	report := f.drain(t)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, f.remote.callsTo(http.MethodPost, "/sync/patients"), 1)

	entries := f.pending(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Retries)
	assert.Contains(t, entries[0].LastError, "failed to acknowledge")
}

func TestDrain_MissingEntityIsDropped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, entities.ActionUpdate, entities.KindPatient, "gone", nil)
	require.NoError(t, err)

	f.session.SetOnline(true)
	report := f.drain(t)
	assert.Equal(t, 1, report.Dropped)
	assert.Empty(t, f.pending(t))
}

func TestDrain_AuthExpiredStopsPass(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	_, err = f.records.CreatePatient(ctx, records.PatientInput{Name: "John Roe"})
	require.NoError(t, err)

	f.session.SetOnline(true)
	f.remote.setFail("/sync/patients", http.StatusUnauthorized)

	report := f.drain(t)
	assert.True(t, report.Aborted)
	assert.Equal(t, 0, report.Failed)
	assert.Len(t, f.remote.all(), 1, "pass stops at the first auth failure")
	assert.False(t, f.session.Authenticated())

	for _, e := range f.pending(t) {
		assert.Equal(t, 0, e.Retries, "auth expiry does not burn retries")
	}
	assert.Equal(t, 1, countEvents(f.drainEvents(), events.AuthExpired))
}

func TestDrain_Guard(t *testing.T) {
	f := setup(t)
	f.session.SetOnline(true)

	require.True(t, f.engine.running.CompareAndSwap(false, true))
	report, err := f.engine.Drain(context.Background())
	assert.ErrorIs(t, err, ErrDrainInProgress)
	assert.Equal(t, SkippedInProgress, report.Skipped)
	f.engine.running.Store(false)

	_, err = f.engine.Drain(context.Background())
	assert.NoError(t, err)
}

func TestTriggerAndPending(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)

	pending, err := f.engine.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	f.session.SetOnline(true)
	for range 3 {
		f.engine.Trigger()
	}
	f.engine.Wait()

	pending, err = f.engine.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	assert.Len(t, f.remote.callsTo(http.MethodPost, "/sync/patients"), 1)
}

func TestStop_RefusesTriggers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.records.CreatePatient(ctx, records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
	f.session.SetOnline(true)

	f.engine.Stop()
	f.engine.Trigger()
	f.engine.Wait()

	assert.Empty(t, f.remote.all())
	assert.Len(t, f.pending(t), 1)
}

type recorderFunc func(Report)

func (r recorderFunc) RecordPass(_ context.Context, report Report) { r(report) }

func TestDrain_RecordsPass(t *testing.T) {
	f := setup(t)
	var got []Report
	f.engine.WithRecorder(recorderFunc(func(r Report) { got = append(got, r) }))

	f.session.SetOnline(true)
	f.drain(t)
	require.Len(t, got, 1)
	assert.False(t, got[0].FinishedAt.Before(got[0].StartedAt))
}

func TestExtractRemoteID(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		envelope string
		want     string
		wantErr  bool
	}{
		{"enveloped number", `{"patient":{"id":42,"name":"Jane"}}`, "patient", "42", false},
		{"enveloped string", `{"treatment_plan":{"id":"tp-7"}}`, "treatment_plan", "tp-7", false},
		{"data envelope", `{"data":{"id":9}}`, "plan_step", "9", false},
		{"top level", `{"id":123456789012}`, "patient", "123456789012", false},
		{"no id", `{"patient":{"name":"Jane"}}`, "patient", "", true},
		{"not json", `created`, "patient", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractRemoteID([]byte(tt.body), tt.envelope)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
