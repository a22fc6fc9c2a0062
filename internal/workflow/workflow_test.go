package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"postforge/internal/agent"
	"postforge/internal/models"
	"postforge/internal/store"
)

var testAgents = agent.Directory{Orchestrator: "orch-1", Visual: "visual-1", Judge: "judge-1"}

type call struct {
	input   string
	agentID string
}

// fakeGateway replays scripted results per agent ID and records every call.
// When an agent has a gate, its calls announce themselves on entered and
// block until the gate is released.
type fakeGateway struct {
	mu      sync.Mutex
	results map[string][]agent.Result
	calls   []call
	gates   map[string]chan struct{}
	entered chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results: make(map[string][]agent.Result),
		gates:   make(map[string]chan struct{}),
	}
}

// hold makes every later call to the given agents block until released.
func (g *fakeGateway) hold(agentIDs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entered == nil {
		g.entered = make(chan string, 8)
	}
	for _, id := range agentIDs {
		g.gates[id] = make(chan struct{})
	}
}

func (g *fakeGateway) release(agentID string) {
	g.mu.Lock()
	gate := g.gates[agentID]
	g.mu.Unlock()
	gate <- struct{}{}
}

func (g *fakeGateway) push(agentID string, res agent.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[agentID] = append(g.results[agentID], res)
}

func (g *fakeGateway) Invoke(_ context.Context, input, agentID string) agent.Result {
	g.mu.Lock()
	g.calls = append(g.calls, call{input: input, agentID: agentID})
	gate := g.gates[agentID]
	entered := g.entered
	g.mu.Unlock()

	if gate != nil {
		entered <- agentID
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	queue := g.results[agentID]
	if len(queue) == 0 {
		return agent.Failed(errors.New("no scripted result"))
	}
	g.results[agentID] = queue[1:]
	return queue[0]
}

func (g *fakeGateway) callsTo(agentID string) []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []call
	for _, c := range g.calls {
		if c.agentID == agentID {
			out = append(out, c)
		}
	}
	return out
}

func ok(t *testing.T, v any, artifacts ...string) agent.Result {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	res := agent.Result{Success: true, Payload: b}
	for _, u := range artifacts {
		res.Artifacts = append(res.Artifacts, agent.Artifact{FileURL: u})
	}
	return res
}

func fail() agent.Result {
	return agent.Failed(errors.New("remote exploded"))
}

func newTestWorkflow(gw agent.Gateway) (*Workflow, *store.ContentStore) {
	s := store.NewContentStore()
	return New(gw, testAgents, s), s
}

func score(v float64) *float64 { return &v }

func draftOf(text string) models.OrchestratorResult {
	return models.OrchestratorResult{
		FinalPost:      text,
		ContentPackage: &models.ContentPackage{PostText: text, Hashtags: []string{"#AI"}},
	}
}

// =====================================================================
// Draft
// =====================================================================

func TestDraftSuccessCreatesOneRecord(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("AI will not replace marketers.")))
	w, s := newTestWorkflow(gw)

	before := time.Now()
	rec, err := w.Draft(context.Background(), Brief{Topic: "AI in marketing"})
	after := time.Now()
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("history length = %d, want 1", s.Len())
	}
	if rec.Visual != nil || rec.Evaluation != nil {
		t.Error("new record must have no visual or evaluation result")
	}
	if rec.Orchestrator.PrimaryText() == "" {
		t.Error("record should have non-empty post text")
	}
	if rec.CreatedAt.Before(before) || rec.CreatedAt.After(after) {
		t.Errorf("CreatedAt %v outside call window [%v, %v]", rec.CreatedAt, before, after)
	}

	st := w.State()
	if st.Progress != ProgressIdle || st.InFlight[agent.StageDraft] || st.ActiveAgents[agent.StageDraft] != "" {
		t.Errorf("state after draft = %+v", st)
	}
}

func TestDraftComposesPromptWithDefaults(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("x")))
	w, _ := newTestWorkflow(gw)

	if _, err := w.Draft(context.Background(), Brief{Topic: "AI in marketing"}); err != nil {
		t.Fatalf("Draft: %v", err)
	}

	want := "Topic: AI in marketing\n" +
		"Tone: Professional\n" +
		"Audience: General LinkedIn audience\n" +
		"Length: Medium\n" +
		"CTA Preference: Question"
	calls := gw.callsTo("orch-1")
	if len(calls) != 1 {
		t.Fatalf("orchestrator calls = %d, want 1", len(calls))
	}
	if diff := cmp.Diff(want, calls[0].input); diff != "" {
		t.Errorf("prompt (-want +got):\n%s", diff)
	}
}

func TestDraftEmptyTopic(t *testing.T) {
	for _, topic := range []string{"", "   ", "\n\t"} {
		gw := newFakeGateway()
		w, s := newTestWorkflow(gw)

		_, err := w.Draft(context.Background(), Brief{Topic: topic})
		if !errors.Is(err, ErrEmptyTopic) {
			t.Errorf("Draft(%q) err = %v, want ErrEmptyTopic", topic, err)
		}
		if len(gw.calls) != 0 {
			t.Errorf("Draft(%q) called the gateway", topic)
		}
		if s.Len() != 0 {
			t.Errorf("Draft(%q) created a record", topic)
		}
		if w.State().Error != MsgEmptyTopic {
			t.Errorf("error message = %q", w.State().Error)
		}
	}
}

func TestDraftFailureLeavesHistoryUntouched(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("first")))
	gw.push("orch-1", fail())
	w, s := newTestWorkflow(gw)

	first, err := w.Draft(context.Background(), Brief{Topic: "one"})
	if err != nil {
		t.Fatalf("first Draft: %v", err)
	}
	before := s.History()

	_, err = w.Draft(context.Background(), Brief{Topic: "two"})
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("err = %v, want ErrStageFailed", err)
	}

	if diff := cmp.Diff(before, s.History()); diff != "" {
		t.Errorf("history changed on failure (-before +after):\n%s", diff)
	}
	if s.Current().ID != first.ID {
		t.Error("current record changed on failure")
	}
	st := w.State()
	if st.Error != "Content generation failed" {
		t.Errorf("error = %q", st.Error)
	}
	if st.Progress != ProgressIdle || st.InFlight[agent.StageDraft] {
		t.Errorf("progress not reset: %+v", st)
	}
}

func TestDraftUndecodablePayloadFails(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", agent.Result{Success: true, Payload: json.RawMessage(`"just a string"`)})
	w, s := newTestWorkflow(gw)

	if _, err := w.Draft(context.Background(), Brief{Topic: "x"}); !errors.Is(err, ErrStageFailed) {
		t.Fatalf("err = %v, want ErrStageFailed", err)
	}
	if s.Len() != 0 {
		t.Error("record created from an undecodable payload")
	}
}

// TestDraftProgressSequence verifies the cosmetic phase sequence observed
// around the single remote call: research while waiting, ready once the
// payload arrives, then idle.
func TestDraftProgressSequence(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("x")))
	s := store.NewContentStore()

	var mu sync.Mutex
	var seen []Progress
	var w *Workflow
	w = New(gw, testAgents, s, WithOnChange(func() {
		p := w.State().Progress
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != p {
			seen = append(seen, p)
		}
	}))

	if _, err := w.Draft(context.Background(), Brief{Topic: "x"}); err != nil {
		t.Fatalf("Draft: %v", err)
	}

	want := []Progress{ProgressResearch, ProgressReady, ProgressIdle}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("progress sequence (-want +got):\n%s", diff)
	}
}

// =====================================================================
// Visualize / Evaluate
// =====================================================================

func TestVisualizeWithoutRecord(t *testing.T) {
	gw := newFakeGateway()
	w, _ := newTestWorkflow(gw)

	if _, err := w.Visualize(context.Background()); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Visualize err = %v, want ErrNoRecord", err)
	}
	if _, err := w.Evaluate(context.Background()); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Evaluate err = %v, want ErrNoRecord", err)
	}
	if len(gw.calls) != 0 {
		t.Error("gateway called without a record")
	}
}

func TestVisualizeAmendsOnlyVisualFields(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("post")))
	gw.push("judge-1", ok(t, models.JudgeResult{ClarityScore: score(8), Strengths: []string{"clear"}}))
	gw.push("visual-1", ok(t, models.VisualResult{VisualStyle: "flat"}, "https://cdn/1.png", "https://cdn/2.png"))
	w, s := newTestWorkflow(gw)
	ctx := context.Background()

	if _, err := w.Draft(ctx, Brief{Topic: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	before := s.Current()

	rec, err := w.Visualize(ctx)
	if err != nil {
		t.Fatalf("Visualize: %v", err)
	}

	if diff := cmp.Diff(before.Orchestrator, rec.Orchestrator); diff != "" {
		t.Errorf("orchestrator result changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before.Evaluation, rec.Evaluation); diff != "" {
		t.Errorf("evaluation changed (-before +after):\n%s", diff)
	}
	if rec.Visual == nil || rec.Visual.VisualStyle != "flat" {
		t.Errorf("visual = %+v", rec.Visual)
	}
	if diff := cmp.Diff([]string{"https://cdn/1.png", "https://cdn/2.png"}, rec.VisualImages); diff != "" {
		t.Errorf("images (-want +got):\n%s", diff)
	}
}

func TestFailedRerunKeepsPriorResults(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("post")))
	gw.push("visual-1", ok(t, models.VisualResult{VisualStyle: "flat"}, "https://cdn/1.png"))
	gw.push("visual-1", fail())
	gw.push("judge-1", ok(t, models.JudgeResult{OverallAverage: score(8.5), PublicationReady: true}))
	gw.push("judge-1", fail())
	w, s := newTestWorkflow(gw)
	ctx := context.Background()

	if _, err := w.Draft(ctx, Brief{Topic: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Visualize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}
	before := s.Current()

	if _, err := w.Visualize(ctx); !errors.Is(err, ErrStageFailed) {
		t.Fatalf("second Visualize err = %v", err)
	}
	if got := w.State().Error; got != "Visual generation failed" {
		t.Errorf("error = %q", got)
	}
	if _, err := w.Evaluate(ctx); !errors.Is(err, ErrStageFailed) {
		t.Fatalf("second Evaluate err = %v", err)
	}
	if got := w.State().Error; got != "Failed to evaluate content" {
		t.Errorf("error = %q", got)
	}

	if diff := cmp.Diff(before, s.Current()); diff != "" {
		t.Errorf("record changed after failed reruns (-before +after):\n%s", diff)
	}
}

func TestVisualizeSendsEditedText(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("machine draft")))
	gw.push("visual-1", ok(t, models.VisualResult{}))
	gw.push("judge-1", ok(t, models.JudgeResult{}))
	w, s := newTestWorkflow(gw)
	ctx := context.Background()

	if _, err := w.Draft(ctx, Brief{Topic: "AI in marketing"}); err != nil {
		t.Fatal(err)
	}
	s.SetEditablePostText("my edited post")

	if _, err := w.Visualize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Evaluate(ctx); err != nil {
		t.Fatal(err)
	}

	if got := gw.callsTo("visual-1")[0].input; got != "my edited post" {
		t.Errorf("visualize input = %q, want edited text", got)
	}
	if got := gw.callsTo("judge-1")[0].input; got != "my edited post" {
		t.Errorf("evaluate input = %q, want edited text", got)
	}
}

func TestVisualizeFallsBackToDraftText(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("machine draft")))
	gw.push("visual-1", ok(t, models.VisualResult{}))
	w, s := newTestWorkflow(gw)
	ctx := context.Background()

	if _, err := w.Draft(ctx, Brief{Topic: "x"}); err != nil {
		t.Fatal(err)
	}
	s.SetEditablePostText("")
	if _, err := w.Visualize(ctx); err != nil {
		t.Fatal(err)
	}
	if got := gw.callsTo("visual-1")[0].input; got != "machine draft" {
		t.Errorf("visualize input = %q, want draft text", got)
	}
}

// =====================================================================
// Concurrency
// =====================================================================

// TestSameStageSecondTriggerRejected verifies that a stage triggered while
// it is in flight is refused, while other stages keep running.
func TestSameStageSecondTriggerRejected(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("post")))
	w, _ := newTestWorkflow(gw)
	ctx := context.Background()
	if _, err := w.Draft(ctx, Brief{Topic: "x"}); err != nil {
		t.Fatal(err)
	}

	gw.hold("visual-1", "judge-1")
	gw.push("visual-1", ok(t, models.VisualResult{VisualStyle: "first"}))
	gw.push("judge-1", ok(t, models.JudgeResult{}))

	errs := make(chan error, 2)
	go func() { _, err := w.Visualize(ctx); errs <- err }()
	<-gw.entered

	st := w.State()
	if !st.InFlight[agent.StageVisualize] || st.ActiveAgents[agent.StageVisualize] != "visual-1" {
		t.Errorf("visualize should be in flight: %+v", st)
	}

	if _, err := w.Visualize(ctx); !errors.Is(err, ErrStageBusy) {
		t.Errorf("second Visualize err = %v, want ErrStageBusy", err)
	}

	// Evaluate is not blocked by the running visualization.
	go func() { _, err := w.Evaluate(ctx); errs <- err }()
	<-gw.entered
	if !w.State().InFlight[agent.StageEvaluate] {
		t.Error("evaluate should run alongside visualize")
	}

	gw.release("visual-1")
	gw.release("judge-1")
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("stage error: %v", err)
		}
	}

	if n := len(gw.callsTo("visual-1")); n != 1 {
		t.Errorf("visual agent called %d times, want 1", n)
	}
	st = w.State()
	if st.InFlight[agent.StageVisualize] || st.InFlight[agent.StageEvaluate] {
		t.Errorf("stages still in flight: %+v", st)
	}
}

// TestVisualResultPinnedToOriginatingRecord verifies that a visualization
// finishing after a newer draft lands on the record it was computed for.
func TestVisualResultPinnedToOriginatingRecord(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("old post")))
	w, s := newTestWorkflow(gw)
	ctx := context.Background()
	old, err := w.Draft(ctx, Brief{Topic: "old"})
	if err != nil {
		t.Fatal(err)
	}

	gw.hold("visual-1")
	gw.push("visual-1", ok(t, models.VisualResult{VisualStyle: "for old"}))
	gw.push("orch-1", ok(t, draftOf("new post")))

	done := make(chan error, 1)
	go func() { _, err := w.Visualize(ctx); done <- err }()
	<-gw.entered

	newer, err := w.Draft(ctx, Brief{Topic: "new"})
	if err != nil {
		t.Fatal(err)
	}

	gw.release("visual-1")
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if got := s.FindByID(old.ID); got.Visual == nil || got.Visual.VisualStyle != "for old" {
		t.Errorf("old record visual = %+v", got.Visual)
	}
	if got := s.FindByID(newer.ID); got.Visual != nil {
		t.Errorf("new record received a visual it never asked for: %+v", got.Visual)
	}
}

func TestStartingStageClearsError(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", fail())
	gw.push("orch-1", ok(t, draftOf("x")))
	w, _ := newTestWorkflow(gw)
	ctx := context.Background()

	w.Draft(ctx, Brief{Topic: "x"})
	if w.State().Error == "" {
		t.Fatal("expected an error after failure")
	}
	if _, err := w.Draft(ctx, Brief{Topic: "x"}); err != nil {
		t.Fatal(err)
	}
	if msg := w.State().Error; msg != "" {
		t.Errorf("error = %q after successful retry", msg)
	}

	w.Draft(ctx, Brief{})
	w.DismissError()
	if msg := w.State().Error; msg != "" {
		t.Errorf("error = %q after dismiss", msg)
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	started  map[agent.Stage]int
	outcomes []bool
}

func (r *countingRecorder) StageStarted(s agent.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started == nil {
		r.started = make(map[agent.Stage]int)
	}
	r.started[s]++
}

func (r *countingRecorder) StageFinished(_ agent.Stage, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, success)
}

func TestRecorderObservesCalls(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("x")))
	gw.push("visual-1", fail())
	rec := &countingRecorder{}
	w := New(gw, testAgents, store.NewContentStore(), WithRecorder(rec))
	ctx := context.Background()

	w.Draft(ctx, Brief{Topic: "x"})
	w.Visualize(ctx)

	if rec.started[agent.StageDraft] != 1 || rec.started[agent.StageVisualize] != 1 {
		t.Errorf("started = %v", rec.started)
	}
	if diff := cmp.Diff([]bool{true, false}, rec.outcomes); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}

func TestProgressLabels(t *testing.T) {
	for _, p := range Phases() {
		if p.Label() == "" {
			t.Errorf("phase %d has no label", p)
		}
	}
	if ProgressIdle.Label() != "" {
		t.Error("idle should have no label")
	}
	if !strings.Contains(ProgressReady.Label(), "ready") {
		t.Errorf("ready label = %q", ProgressReady.Label())
	}
}

func TestProgressSteps(t *testing.T) {
	for _, st := range ProgressIdle.Steps() {
		if st.Done || st.Active {
			t.Errorf("idle step %+v", st)
		}
	}

	steps := ProgressValidation.Steps()
	if len(steps) != len(Phases()) {
		t.Fatalf("steps = %d, want %d", len(steps), len(Phases()))
	}
	want := []Step{
		{Label: ProgressResearch.Label(), Done: true},
		{Label: ProgressWriting.Label(), Done: true},
		{Label: ProgressValidation.Label(), Active: true},
		{Label: ProgressHumanization.Label()},
		{Label: ProgressReady.Label()},
	}
	if diff := cmp.Diff(want, steps); diff != "" {
		t.Errorf("steps (-want +got):\n%s", diff)
	}
}

// TestStageErrorCarriesMessageWhileOtherStageRuns verifies that a failed
// stage reports its own message even after an overlapping stage has
// cleared the shared error slot.
func TestStageErrorCarriesMessageWhileOtherStageRuns(t *testing.T) {
	gw := newFakeGateway()
	gw.push("orch-1", ok(t, draftOf("post")))
	w, _ := newTestWorkflow(gw)
	ctx := context.Background()
	if _, err := w.Draft(ctx, Brief{Topic: "x"}); err != nil {
		t.Fatal(err)
	}

	gw.hold("visual-1", "judge-1")
	gw.push("visual-1", fail())
	gw.push("judge-1", ok(t, models.JudgeResult{}))

	visualDone := make(chan error, 1)
	go func() { _, err := w.Visualize(ctx); visualDone <- err }()
	<-gw.entered
	gw.release("visual-1")
	visualErr := <-visualDone

	judgeDone := make(chan error, 1)
	go func() { _, err := w.Evaluate(ctx); judgeDone <- err }()
	<-gw.entered

	if got := w.State().Error; got != "" {
		t.Errorf("shared error = %q, want cleared by the running evaluation", got)
	}
	var stageErr *StageError
	if !errors.As(visualErr, &stageErr) {
		t.Fatalf("Visualize err = %v, want *StageError", visualErr)
	}
	if stageErr.Stage != agent.StageVisualize || stageErr.Message != "Visual generation failed" {
		t.Errorf("stage error = %+v", stageErr)
	}
	if !errors.Is(visualErr, ErrStageFailed) {
		t.Error("StageError does not match ErrStageFailed")
	}

	gw.release("judge-1")
	if err := <-judgeDone; err != nil {
		t.Errorf("Evaluate: %v", err)
	}
}
