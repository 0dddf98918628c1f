package materializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewboard/materializer/internal/domain"
	"github.com/crewboard/materializer/internal/postgres"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type fakeDefinitions struct {
	defs []*domain.TaskDefinition
	err  error
}

func (f *fakeDefinitions) ListActive(_ context.Context) ([]*domain.TaskDefinition, error) {
	return f.defs, f.err
}
func (f *fakeDefinitions) GetByID(_ context.Context, id string) (*domain.TaskDefinition, error) {
	for _, d := range f.defs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, &domain.DefinitionNotFoundError{DefinitionID: id}
}

var _ postgres.DefinitionRepository = (*fakeDefinitions)(nil)

type fakeDirectory struct {
	people    []domain.Personnel
	existsErr map[string]error // per personnel id
	listErr   error
}

func (f *fakeDirectory) List(_ context.Context, orgID string) ([]domain.Personnel, error) {
	var out []domain.Personnel
	for _, p := range f.people {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return out, f.listErr
}
func (f *fakeDirectory) ListByRole(_ context.Context, orgID string, role domain.Role) ([]domain.Personnel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Personnel
	for _, p := range f.people {
		if p.OrgID == orgID && p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeDirectory) Exists(_ context.Context, id string) (bool, error) {
	if err, ok := f.existsErr[id]; ok {
		return false, err
	}
	for _, p := range f.people {
		if p.ID == id {
			return true, nil
		}
	}
	return false, nil
}

var _ postgres.PersonnelDirectory = (*fakeDirectory)(nil)

type fakeExceptions struct {
	skips    map[string]bool              // defID|date
	leaves   map[string]*domain.LeaveDate // defID|personnelID|date
	leaveErr map[string]error             // per personnel id
	skipErr  error
}

func newFakeExceptions() *fakeExceptions {
	return &fakeExceptions{
		skips:    make(map[string]bool),
		leaves:   make(map[string]*domain.LeaveDate),
		leaveErr: make(map[string]error),
	}
}

func dayKey(parts ...string) string {
	k := parts[0]
	for _, p := range parts[1:] {
		k += "|" + p
	}
	return k
}

func (f *fakeExceptions) SkipExists(_ context.Context, defID string, date time.Time) (bool, error) {
	if f.skipErr != nil {
		return false, f.skipErr
	}
	return f.skips[dayKey(defID, date.Format("2006-01-02"))], nil
}
func (f *fakeExceptions) GetLeave(_ context.Context, defID, personnelID string, date time.Time) (*domain.LeaveDate, error) {
	if err, ok := f.leaveErr[personnelID]; ok {
		return nil, err
	}
	return f.leaves[dayKey(defID, personnelID, date.Format("2006-01-02"))], nil
}

var _ postgres.ExceptionRepository = (*fakeExceptions)(nil)

type fakeInstances struct {
	mu        sync.Mutex
	rows      map[string]*domain.TaskInstance // defID|personnelID|date
	existsErr map[string]error                // per personnel id
	insertErr map[string]error                // per personnel id
	raceLost  map[string]bool                 // simulate a concurrent worker winning the key
}

func newFakeInstances() *fakeInstances {
	return &fakeInstances{
		rows:      make(map[string]*domain.TaskInstance),
		existsErr: make(map[string]error),
		insertErr: make(map[string]error),
		raceLost:  make(map[string]bool),
	}
}

func instKey(defID, personnelID string, date time.Time) string {
	return dayKey(defID, personnelID, date.Format("2006-01-02"))
}

func (f *fakeInstances) Exists(_ context.Context, defID, personnelID string, date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.existsErr[personnelID]; ok {
		return false, err
	}
	_, ok := f.rows[instKey(defID, personnelID, date)]
	return ok, nil
}
func (f *fakeInstances) InsertIfAbsent(_ context.Context, inst *domain.TaskInstance) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.insertErr[inst.PersonnelID]; ok {
		return false, err
	}
	if f.raceLost[inst.PersonnelID] {
		return false, nil
	}
	key := instKey(*inst.DefinitionID, inst.PersonnelID, inst.Deadline)
	if _, ok := f.rows[key]; ok {
		return false, nil
	}
	f.rows[key] = inst
	return true, nil
}
func (f *fakeInstances) GetByID(_ context.Context, id string) (*domain.TaskInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.rows {
		if inst.ID == id {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("task instance %s: not found", id)
}
func (f *fakeInstances) ListForDate(_ context.Context, defID string, date time.Time) ([]*domain.TaskInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.TaskInstance
	for _, inst := range f.rows {
		if inst.DefinitionID != nil && *inst.DefinitionID == defID && domain.DateOf(inst.Deadline).Equal(domain.DateOf(date)) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// byPersonnel returns the stored instance for one assignee, or nil.
func (f *fakeInstances) byPersonnel(defID, personnelID string, date time.Time) *domain.TaskInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[instKey(defID, personnelID, date)]
}

func (f *fakeInstances) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

var _ postgres.InstanceRepository = (*fakeInstances)(nil)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (f *fakeNotifier) TaskAssigned(_ context.Context, n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

func (f *fakeNotifier) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.RecipientID
	}
	return out
}

type fakeRuns struct {
	mu       sync.Mutex
	recorded []*domain.RunReport
}

func (f *fakeRuns) RecordRun(_ context.Context, r *domain.RunReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, r)
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	wednesday = time.Date(2026, time.September, 9, 0, 0, 0, 0, time.UTC)
	tuesday   = time.Date(2026, time.September, 8, 0, 0, 0, 0, time.UTC)
)

func weeklyMWF() domain.Recurrence {
	return domain.Weekly{Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday}}
}

func makeDefinition(id string, rec domain.Recurrence, asg domain.Assignment) *domain.TaskDefinition {
	return &domain.TaskDefinition{
		ID:            id,
		OrgID:         "org-1",
		CreatorID:     "creator-1",
		Name:          "Daily standup notes",
		Description:   "Write up the standup notes",
		Recurrence:    rec,
		ScheduledTime: domain.TimeOfDay{Hour: 9, Minute: 30},
		Assignment:    asg,
		Active:        true,
	}
}

func orgPeople() []domain.Personnel {
	return []domain.Personnel{
		{ID: "p1", OrgID: "org-1", Name: "Avery", Role: domain.RolePersonnel},
		{ID: "p2", OrgID: "org-1", Name: "Blake", Role: domain.RolePersonnel},
		{ID: "m1", OrgID: "org-1", Name: "Casey", Role: domain.RoleManager},
		{ID: "m2", OrgID: "org-1", Name: "Drew", Role: domain.RoleManager},
		{ID: "m3", OrgID: "org-1", Name: "Emery", Role: domain.RoleManager},
	}
}

func newTestEngine(defs *fakeDefinitions, dir *fakeDirectory, exc *fakeExceptions, inst *fakeInstances, notif *fakeNotifier, opts ...Option) *Engine {
	base := []Option{WithLogger(slog.Default()), WithUnitTimeout(time.Second)}
	return NewEngine(defs, dir, exc, inst, notif, append(base, opts...)...)
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestRun_WeeklyDueDate_CreatesInstancePerAssignee(t *testing.T) {
	def := makeDefinition("def-1", weeklyMWF(), domain.Specific{PersonnelIDs: []string{"p1", "p2"}})
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.DefinitionsEvaluated)
	assert.Equal(t, int64(1), report.DefinitionsDue)
	assert.Equal(t, int64(2), report.InstancesCreated)
	assert.Empty(t, report.Errors)

	for _, pid := range []string{"p1", "p2"} {
		got := inst.byPersonnel("def-1", pid, wednesday)
		require.NotNil(t, got, "instance for %s", pid)
		assert.Equal(t, domain.StatusOpen, got.Status)
		assert.Equal(t, "creator-1", got.AuthorID)
		assert.Equal(t, "Write up the standup notes", got.Description)
		assert.Equal(t, time.Date(2026, time.September, 9, 9, 30, 0, 0, time.UTC), got.Deadline)
	}
	assert.ElementsMatch(t, []string{"p1", "p2"}, notif.recipients())
}

func TestRun_NotDueDate_NoInstances(t *testing.T) {
	def := makeDefinition("def-1", weeklyMWF(), domain.Specific{PersonnelIDs: []string{"p1", "p2"}})
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), inst, notif)

	report, err := eng.Run(context.Background(), tuesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.DefinitionsEvaluated)
	assert.Equal(t, int64(0), report.DefinitionsDue)
	assert.Equal(t, int64(0), report.InstancesCreated)
	assert.Equal(t, 0, inst.count())
	assert.Empty(t, notif.recipients())
}

func TestRun_ByRole_SuppressesLeaveWithoutDelegate(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.ByRole{Role: domain.RoleManager})
	exc := newFakeExceptions()
	// m2 on leave today, no delegate named.
	exc.leaves[dayKey("def-1", "m2", wednesday.Format("2006-01-02"))] = &domain.LeaveDate{
		DefinitionID: "def-1", PersonnelID: "m2", Date: wednesday,
	}
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, exc, inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(2), report.InstancesCreated)
	assert.Equal(t, int64(1), report.Suppressed)
	assert.NotNil(t, inst.byPersonnel("def-1", "m1", wednesday))
	assert.Nil(t, inst.byPersonnel("def-1", "m2", wednesday))
	assert.NotNil(t, inst.byPersonnel("def-1", "m3", wednesday))
}

func TestRun_LeaveWithDelegate_Redirects(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1"}})
	exc := newFakeExceptions()
	delegate := "p2"
	exc.leaves[dayKey("def-1", "p1", wednesday.Format("2006-01-02"))] = &domain.LeaveDate{
		DefinitionID: "def-1", PersonnelID: "p1", Date: wednesday, DelegateID: &delegate,
	}
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, exc, inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.InstancesCreated)
	assert.Equal(t, int64(0), report.Suppressed)
	assert.Nil(t, inst.byPersonnel("def-1", "p1", wednesday), "no instance for the assignee on leave")
	require.NotNil(t, inst.byPersonnel("def-1", "p2", wednesday), "delegate receives the instance")
	assert.Equal(t, []string{"p2"}, notif.recipients())
}

func TestRun_SkipDate_TakesPrecedenceOverLeave(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1", "p2"}})
	exc := newFakeExceptions()
	exc.skips[dayKey("def-1", wednesday.Format("2006-01-02"))] = true
	// A redirect that must never be consulted.
	delegate := "m1"
	exc.leaves[dayKey("def-1", "p1", wednesday.Format("2006-01-02"))] = &domain.LeaveDate{
		DefinitionID: "def-1", PersonnelID: "p1", Date: wednesday, DelegateID: &delegate,
	}
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, exc, inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.DefinitionsSkipped)
	assert.Equal(t, int64(0), report.InstancesCreated)
	assert.Equal(t, 0, inst.count())
	assert.Empty(t, notif.recipients())
}

func TestRun_Idempotent_SecondRunCreatesNothing(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1", "p2"}})
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), inst, notif)

	first, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)
	require.Equal(t, int64(2), first.InstancesCreated)

	second, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(0), second.InstancesCreated)
	assert.Equal(t, int64(2), second.AlreadyMaterialized)
	assert.Equal(t, 2, inst.count(), "instance set unchanged after re-run")
	assert.Len(t, notif.recipients(), 2, "no duplicate notifications on re-run")
}

func TestRun_LostInsertRace_CountedAsAlreadyMaterialized(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1"}})
	inst := newFakeInstances()
	inst.raceLost["p1"] = true // store reports the key already taken
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(0), report.InstancesCreated)
	assert.Equal(t, int64(1), report.AlreadyMaterialized)
	assert.Empty(t, report.Errors, "a lost race is benign, not an error")
	assert.Empty(t, notif.recipients(), "no notification without an actual insert")
}

func TestRun_OneAssigneeFailure_IsolatedFromSiblings(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1", "p2"}})
	inst := newFakeInstances()
	inst.insertErr["p1"] = errors.New("connection reset")
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.InstancesCreated, "p2 must still be materialized")
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "def-1", report.Errors[0].DefinitionID)
	assert.Equal(t, "p1", report.Errors[0].PersonnelID)
	assert.Contains(t, report.Errors[0].Message, "connection reset")
	assert.NotNil(t, inst.byPersonnel("def-1", "p2", wednesday))
}

func TestRun_OneDefinitionFailure_IsolatedFromSiblings(t *testing.T) {
	broken := makeDefinition("def-broken", domain.Daily{}, domain.ByRole{Role: domain.RoleManager})
	healthy := makeDefinition("def-ok", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1"}})

	dir := &fakeDirectory{people: orgPeople(), listErr: errors.New("directory unavailable")}
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{broken, healthy}},
		dir, newFakeExceptions(), inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.InstancesCreated)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "def-broken", report.Errors[0].DefinitionID)
	assert.NotNil(t, inst.byPersonnel("def-ok", "p1", wednesday))
}

func TestRun_DanglingSpecificReference_DroppedNotFatal(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1", "ghost"}})
	inst := newFakeInstances()
	notif := &fakeNotifier{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), inst, notif)

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.InstancesCreated)
	assert.Empty(t, report.Errors)
	assert.NotNil(t, inst.byPersonnel("def-1", "p1", wednesday))
	assert.Nil(t, inst.byPersonnel("def-1", "ghost", wednesday))
}

func TestRun_ListActiveFails_AbortsRun(t *testing.T) {
	eng := newTestEngine(&fakeDefinitions{err: errors.New("postgres down")},
		&fakeDirectory{}, newFakeExceptions(), newFakeInstances(), &fakeNotifier{})

	_, err := eng.Run(context.Background(), wednesday)
	require.Error(t, err)
}

func TestRun_RecordsRunReport(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1"}})
	runs := &fakeRuns{}

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), newFakeInstances(), &fakeNotifier{},
		WithRunRecorder(runs))

	report, err := eng.Run(context.Background(), wednesday)
	require.NoError(t, err)

	require.Len(t, runs.recorded, 1)
	assert.Equal(t, report.RunID, runs.recorded[0].RunID)
	assert.Equal(t, int64(1), runs.recorded[0].InstancesCreated)
}

func TestRun_DateNormalizedToMidnight(t *testing.T) {
	def := makeDefinition("def-1", domain.Daily{}, domain.Specific{PersonnelIDs: []string{"p1"}})
	inst := newFakeInstances()

	eng := newTestEngine(&fakeDefinitions{defs: []*domain.TaskDefinition{def}},
		&fakeDirectory{people: orgPeople()}, newFakeExceptions(), inst, &fakeNotifier{})

	// Mid-afternoon invocation must still key on the calendar day.
	afternoon := wednesday.Add(14*time.Hour + 23*time.Minute)
	report, err := eng.Run(context.Background(), afternoon)
	require.NoError(t, err)

	require.Equal(t, int64(1), report.InstancesCreated)
	got := inst.byPersonnel("def-1", "p1", wednesday)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, time.September, 9, 9, 30, 0, 0, time.UTC), got.Deadline)
	assert.Equal(t, wednesday, report.Date)
}

func TestApplyExceptions_Outcomes(t *testing.T) {
	exc := newFakeExceptions()
	delegate := "p9"
	exc.leaves[dayKey("def-1", "redirected", wednesday.Format("2006-01-02"))] = &domain.LeaveDate{
		DefinitionID: "def-1", PersonnelID: "redirected", Date: wednesday, DelegateID: &delegate,
	}
	exc.leaves[dayKey("def-1", "suppressed", wednesday.Format("2006-01-02"))] = &domain.LeaveDate{
		DefinitionID: "def-1", PersonnelID: "suppressed", Date: wednesday,
	}

	eng := newTestEngine(&fakeDefinitions{}, &fakeDirectory{}, exc, newFakeInstances(), &fakeNotifier{})

	tests := []struct {
		name     string
		assignee string
		want     domain.Outcome
	}{
		{"no leave entry proceeds", "free", domain.Proceed("free")},
		{"delegate redirects", "redirected", domain.Redirect("p9")},
		{"no delegate suppresses", "suppressed", domain.Suppress()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eng.applyExceptions(context.Background(), "def-1", wednesday, tt.assignee)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAssignees_UnknownVariant_Panics(t *testing.T) {
	type rogue struct{ domain.Assignment }
	def := makeDefinition("def-1", domain.Daily{}, nil)
	def.Assignment = rogue{}

	eng := newTestEngine(&fakeDefinitions{}, &fakeDirectory{}, newFakeExceptions(), newFakeInstances(), &fakeNotifier{})
	assert.Panics(t, func() {
		_, _ = eng.resolveAssignees(context.Background(), def)
	})
}
