package reconcile_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kiranshivaraju/livewatch/internal/page"
	"github.com/kiranshivaraju/livewatch/internal/reconcile"
	"github.com/kiranshivaraju/livewatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu          sync.Mutex
	diagnostics []models.Diagnostic
	settlements []models.Settlement
}

func (f *fakeRecorder) RecordDiagnostic(_ context.Context, d models.Diagnostic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diagnostics = append(f.diagnostics, d)
}

func (f *fakeRecorder) RecordSettlement(_ context.Context, s models.Settlement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settlements = append(f.settlements, s)
}

func testConfig() models.PageConfig {
	return models.PageConfig{
		APIURL:           "http://api.test",
		JobID:            "42",
		PercentThreshold: 50,
		UglymolURL:       "http://viewer.test/uglymol/?model=",
	}
}

func newReconciler(rec reconcile.Recorder) *reconcile.Reconciler {
	return reconcile.NewReconciler(testConfig(), rec)
}

func state(t *testing.T, p *page.Page, key string) page.TaskState {
	t.Helper()
	h, ok := p.Task(key)
	require.True(t, ok, "task %s missing", key)
	return h.State()
}

// --- Scenarios ---

func TestReconcile_RunningWithoutSolution(t *testing.T) {
	p := page.New("42", []string{"P1"})
	r := newReconciler(nil)

	out := r.Reconcile(context.Background(), p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusRunning, Percent: 0},
	})

	st := state(t, p, "P1")
	assert.False(t, st.Settled)
	assert.True(t, st.Progress)
	assert.Equal(t, page.IndicatorNone, st.Indicator)
	assert.NotContains(t, st.Popover, "Percent")
	assert.Equal(t, 0, out.Settled)
}

func TestReconcile_CompleteWithSolutionAndFiles(t *testing.T) {
	p := page.New("42", []string{"P1"})
	rec := &fakeRecorder{}
	r := newReconciler(rec)

	out := r.Reconcile(context.Background(), p, []models.TaskResult{{
		UniprotID:      "P1",
		Status:         models.TaskStatusComplete,
		Percent:        85,
		QFactor:        1.2,
		SpaceGroup:     "P1",
		FilesAvailable: true,
		PackNumber:     "3",
	}})

	st := state(t, p, "P1")
	assert.True(t, st.Settled)
	assert.False(t, st.Progress)
	assert.Equal(t, page.IndicatorSuccess, st.Indicator)

	want := "<dl>" +
		"<dt>Percent</dt><dd>85</dd>" +
		"<dt>Q factor</dt><dd>1.2</dd>" +
		"<dt>Space group</dt><dd>P1</dd>" +
		"<dt>Files</dt>" +
		`<dd><a href="http://api.test/final_pdb?id=42&amp;uniprot_id=P1&amp;space_group=P1&amp;pack_nb=3">PDB</a></dd>` +
		`<dd><a href="http://api.test/final_mtz?id=42&amp;uniprot_id=P1&amp;space_group=P1&amp;pack_nb=3">MTZ</a></dd>` +
		`<dd><a href="http://viewer.test/uglymol/?model=P1_3_P1">Uglymol (beta)</a></dd>` +
		"</dl>"
	assert.Equal(t, want, st.Popover)
	assert.Equal(t, 3, strings.Count(st.Popover, "<a href="))

	assert.Equal(t, 1, out.Settled)
	require.Len(t, rec.settlements, 1)
	s := rec.settlements[0]
	assert.Equal(t, "42", s.JobID)
	assert.Equal(t, "P1", s.UniprotID)
	assert.Equal(t, models.TaskStatusComplete, s.Status)
	assert.Equal(t, string(page.IndicatorSuccess), s.Indicator)
}

func TestReconcile_CompleteWithoutSolution(t *testing.T) {
	p := page.New("42", []string{"P1"})
	r := newReconciler(nil)

	r.Reconcile(context.Background(), p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusComplete, Percent: 0},
	})

	st := state(t, p, "P1")
	assert.True(t, st.Settled)
	assert.False(t, st.Progress)
	assert.Equal(t, page.IndicatorNone, st.Indicator)
	assert.Equal(t, "<dl><dt>No solution</dt></dl>", st.Popover)
}

func TestReconcile_WithoutFilesHasNoLinks(t *testing.T) {
	p := page.New("42", []string{"P1"})
	r := newReconciler(nil)

	r.Reconcile(context.Background(), p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusComplete, Percent: 30, QFactor: 0.5, SpaceGroup: "C 2"},
	})

	st := state(t, p, "P1")
	assert.Equal(t, page.IndicatorWarning, st.Indicator)
	assert.Equal(t, "<dl><dt>Percent</dt><dd>30</dd><dt>Q factor</dt><dd>0.5</dd><dt>Space group</dt><dd>C 2</dd></dl>", st.Popover)
}

func TestReconcile_FailedTaskSettles(t *testing.T) {
	p := page.New("42", []string{"P1"})
	r := newReconciler(nil)

	r.Reconcile(context.Background(), p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusFailed},
	})

	assert.True(t, state(t, p, "P1").Settled)
}

func TestReconcile_FreeFormStatusSettles(t *testing.T) {
	p := page.New("42", []string{"P1"})
	r := newReconciler(nil)

	r.Reconcile(context.Background(), p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatus("Aborted")},
	})

	assert.True(t, state(t, p, "P1").Settled)
}

// --- Monotonic settlement ---

func TestReconcile_SettledTaskIsFrozen(t *testing.T) {
	p := page.New("42", []string{"P1"})
	rec := &fakeRecorder{}
	r := newReconciler(rec)
	ctx := context.Background()

	r.Reconcile(ctx, p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusComplete, Percent: 85, QFactor: 1.2, SpaceGroup: "P1"},
	})
	before := state(t, p, "P1")
	rev := p.Revision()

	out := r.Reconcile(ctx, p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusRunning, Percent: 10, QFactor: 9, SpaceGroup: "P 21"},
	})

	assert.Equal(t, before, state(t, p, "P1"))
	assert.Equal(t, rev, p.Revision())
	assert.Equal(t, 1, out.Frozen)
	assert.Equal(t, 0, out.Updated)
	assert.Len(t, rec.settlements, 1, "settlement is recorded once")
}

func TestReconcile_RunningTaskUpdatesUntilSettled(t *testing.T) {
	p := page.New("42", []string{"P1"})
	r := newReconciler(nil)
	ctx := context.Background()

	r.Reconcile(ctx, p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusRunning, Percent: 20, QFactor: 0.9, SpaceGroup: "P1"},
	})
	st := state(t, p, "P1")
	assert.False(t, st.Settled)
	assert.Equal(t, page.IndicatorWarning, st.Indicator)

	r.Reconcile(ctx, p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusComplete, Percent: 70, QFactor: 0.9, SpaceGroup: "P1"},
	})
	st = state(t, p, "P1")
	assert.True(t, st.Settled)
	assert.Equal(t, page.IndicatorSuccess, st.Indicator)
}

// --- Idempotency ---

func TestReconcile_RepeatedSnapshotIsNoOp(t *testing.T) {
	p := page.New("42", []string{"P1", "P2"})
	r := newReconciler(nil)
	ctx := context.Background()
	results := []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusRunning, Percent: 40, QFactor: 1, SpaceGroup: "P1"},
		{UniprotID: "P2", Status: models.TaskStatusComplete, Percent: 90, QFactor: 1, SpaceGroup: "P1"},
	}

	r.Reconcile(ctx, p, results)
	view := p.View()

	out := r.Reconcile(ctx, p, results)
	assert.Equal(t, view, p.View())
	assert.Equal(t, 0, out.Updated)
	assert.Equal(t, 0, out.Settled)
}

// --- Unknown keys ---

func TestReconcile_UnknownKeyIsIsolated(t *testing.T) {
	p := page.New("42", []string{"P1", "P2"})
	rec := &fakeRecorder{}
	r := newReconciler(rec)

	out := r.Reconcile(context.Background(), p, []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusComplete, Percent: 60},
		{UniprotID: "ZZZ", Status: models.TaskStatusComplete, Percent: 99},
		{UniprotID: "P2", Status: models.TaskStatusComplete, Percent: 0},
	})

	assert.Equal(t, 1, out.Unknown)
	assert.Equal(t, 2, out.Settled)
	assert.True(t, state(t, p, "P1").Settled)
	assert.True(t, state(t, p, "P2").Settled)

	require.Len(t, rec.diagnostics, 1)
	d := rec.diagnostics[0]
	assert.Equal(t, models.DiagnosticUnknownTask, d.Kind)
	require.NotNil(t, d.TaskKey)
	assert.Equal(t, "ZZZ", *d.TaskKey)
	assert.Contains(t, d.Detail, reconcile.ErrUnknownTaskKey.Error())
	assert.Equal(t, []string{"ZZZ"}, out.UnknownKeys)
}

func TestReconcile_UnknownKeyReportedOnce(t *testing.T) {
	p := page.New("42", nil)
	rec := &fakeRecorder{}
	r := newReconciler(rec)
	results := []models.TaskResult{
		{UniprotID: "P1", Status: models.TaskStatusComplete, Percent: 60},
		{UniprotID: "P2", Status: models.TaskStatusRunning},
	}

	for i := 0; i < 5; i++ {
		out := r.Reconcile(context.Background(), p, results)
		assert.Equal(t, []string{"P1", "P2"}, out.UnknownKeys)
	}

	require.Len(t, rec.diagnostics, 2)
	assert.Equal(t, "P1", *rec.diagnostics[0].TaskKey)
	assert.Equal(t, "P2", *rec.diagnostics[1].TaskKey)
}

// --- Classify ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		percent   float64
		threshold float64
		want      page.Indicator
	}{
		{"zero is unset", 0, 50, page.IndicatorNone},
		{"negative is unset", -1, 50, page.IndicatorNone},
		{"below threshold", 10, 50, page.IndicatorWarning},
		{"at threshold", 50, 50, page.IndicatorWarning},
		{"just above threshold", 50.0001, 50, page.IndicatorSuccess},
		{"above threshold", 99, 50, page.IndicatorSuccess},
		{"zero threshold", 0.5, 0, page.IndicatorSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconcile.Classify(tt.percent, tt.threshold))
		})
	}
}

func TestReconcile_ThresholdBoundary(t *testing.T) {
	p := page.New("42", []string{"AT", "ABOVE"})
	r := newReconciler(nil)

	r.Reconcile(context.Background(), p, []models.TaskResult{
		{UniprotID: "AT", Status: models.TaskStatusComplete, Percent: 50},
		{UniprotID: "ABOVE", Status: models.TaskStatusComplete, Percent: 50 + 1e-9},
	})

	assert.Equal(t, page.IndicatorWarning, state(t, p, "AT").Indicator)
	assert.Equal(t, page.IndicatorSuccess, state(t, p, "ABOVE").Indicator)
}

// --- Popover escaping ---

func TestDerive_EscapesValues(t *testing.T) {
	r := newReconciler(nil)

	_, popover := r.Derive(models.TaskResult{
		UniprotID:  "P1",
		Status:     models.TaskStatusComplete,
		Percent:    75.5,
		SpaceGroup: `<b>"x"</b>`,
	})

	assert.Contains(t, popover, "<dd>75.5</dd>")
	assert.Contains(t, popover, "<dd>&lt;b&gt;&#34;x&#34;&lt;/b&gt;</dd>")
}
