// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package workflow drives the three-stage generation pipeline: draft
// (orchestrator agent), visualize (visual intelligence agent) and evaluate
// (judge agent). Stages are independent: each has its own in-flight flag and
// active-agent marker, any of them may run while another is in flight, and
// a failing stage never touches results stored by another stage or by an
// earlier successful run of itself.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"postforge/internal/agent"
	"postforge/internal/models"
	"postforge/internal/policy"
	"postforge/internal/store"
)

var (
	// ErrEmptyTopic is returned by Draft when the topic is blank.
	ErrEmptyTopic = errors.New("workflow: topic is empty")
	// ErrNoRecord is returned by Visualize and Evaluate before any draft exists.
	ErrNoRecord = errors.New("workflow: no content record to work on")
	// ErrStageBusy is returned when a stage is triggered while it is already
	// in flight. The running call is unaffected.
	ErrStageBusy = errors.New("workflow: stage already in flight")
	// ErrStageFailed is returned when the agent call or its payload failed.
	ErrStageFailed = errors.New("workflow: stage failed")
)

// StageError is returned when a stage's agent call or its payload failed.
// Message is the text surfaced for that failure; it matches ErrStageFailed.
type StageError struct {
	Stage   agent.Stage
	Message string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, ErrStageFailed)
}

func (e *StageError) Unwrap() error { return ErrStageFailed }

// MsgEmptyTopic is surfaced when a draft is requested without a topic.
const MsgEmptyTopic = "Please enter a topic or idea"

var stageOps = map[agent.Stage]policy.Operation{
	agent.StageDraft:     {Name: "draft", Policy: policy.Surfaced, Message: "Content generation failed"},
	agent.StageVisualize: {Name: "visualize", Policy: policy.Surfaced, Message: "Visual generation failed"},
	agent.StageEvaluate:  {Name: "evaluate", Policy: policy.Surfaced, Message: "Failed to evaluate content"},
}

// Recorder observes stage executions (metrics).
type Recorder interface {
	StageStarted(stage agent.Stage)
	StageFinished(stage agent.Stage, success bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) StageStarted(agent.Stage)                       {}
func (nopRecorder) StageFinished(agent.Stage, bool, time.Duration) {}

// State is a point-in-time copy of the workflow's UI-facing signals.
type State struct {
	Progress      Progress               `json:"progress"`
	ProgressLabel string                 `json:"progress_label,omitempty"`
	Steps         []Step                 `json:"steps"`
	InFlight      map[agent.Stage]bool   `json:"in_flight"`
	ActiveAgents  map[agent.Stage]string `json:"active_agents"`
	Error         string                 `json:"error,omitempty"`
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithRecorder attaches a stage recorder.
func WithRecorder(r Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

// WithOnChange registers a callback run after every state transition.
// It is called without any workflow lock held.
func WithOnChange(fn func()) Option {
	return func(w *Workflow) { w.onChange = fn }
}

// Workflow is the generation state machine for one studio session.
type Workflow struct {
	gateway  agent.Gateway
	agents   agent.Directory
	store    *store.ContentStore
	recorder Recorder
	onChange func()

	mu       sync.Mutex
	progress Progress
	inFlight map[agent.Stage]bool
	active   map[agent.Stage]string
	errMsg   string
}

// New creates a workflow that records its results in s.
func New(gw agent.Gateway, agents agent.Directory, s *store.ContentStore, opts ...Option) *Workflow {
	w := &Workflow{
		gateway:  gw,
		agents:   agents,
		store:    s,
		recorder: nopRecorder{},
		onChange: func() {},
		inFlight: make(map[agent.Stage]bool),
		active:   make(map[agent.Stage]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Draft asks the orchestrator agent for a new post and, on success, stores
// it as a new current record. Progress moves to the first phase before the
// call, to ready after it, and back to idle once the record exists.
func (w *Workflow) Draft(ctx context.Context, brief Brief) (*models.ContentRecord, error) {
	if !brief.hasTopic() {
		w.mu.Lock()
		w.errMsg = MsgEmptyTopic
		w.mu.Unlock()
		w.onChange()
		return nil, ErrEmptyTopic
	}

	if !w.begin(agent.StageDraft) {
		return nil, ErrStageBusy
	}

	res := w.invoke(ctx, agent.StageDraft, brief.Prompt())
	if !res.Success {
		return nil, w.fail(agent.StageDraft, res.Err)
	}

	var orch models.OrchestratorResult
	if err := res.Decode(&orch); err != nil {
		return nil, w.fail(agent.StageDraft, fmt.Errorf("decode orchestrator result: %w", err))
	}

	w.mu.Lock()
	w.progress = ProgressReady
	w.mu.Unlock()
	w.onChange()

	rec := w.store.CreateRecord(orch)
	slog.Info("draft created", "record_id", rec.ID)

	w.end(agent.StageDraft)
	return rec, nil
}

// Visualize asks the visual intelligence agent for a visual concept of the
// post under review and attaches it, with any rendered assets, to the record
// the text came from.
func (w *Workflow) Visualize(ctx context.Context) (*models.ContentRecord, error) {
	text, recordID, ok := w.store.PostText()
	if !ok {
		return nil, ErrNoRecord
	}
	if !w.begin(agent.StageVisualize) {
		return nil, ErrStageBusy
	}

	res := w.invoke(ctx, agent.StageVisualize, text)
	if !res.Success {
		return nil, w.fail(agent.StageVisualize, res.Err)
	}

	var visual models.VisualResult
	if err := res.Decode(&visual); err != nil {
		return nil, w.fail(agent.StageVisualize, fmt.Errorf("decode visual result: %w", err))
	}

	rec, ok := w.store.Amend(recordID, store.VisualPatch(&visual, res.ArtifactURLs()))
	if !ok {
		slog.Warn("visual result dropped: record gone", "record_id", recordID)
	}

	w.end(agent.StageVisualize)
	return rec, nil
}

// Evaluate asks the judge agent to score the post under review and attaches
// the evaluation to the record the text came from.
func (w *Workflow) Evaluate(ctx context.Context) (*models.ContentRecord, error) {
	text, recordID, ok := w.store.PostText()
	if !ok {
		return nil, ErrNoRecord
	}
	if !w.begin(agent.StageEvaluate) {
		return nil, ErrStageBusy
	}

	res := w.invoke(ctx, agent.StageEvaluate, text)
	if !res.Success {
		return nil, w.fail(agent.StageEvaluate, res.Err)
	}

	var judge models.JudgeResult
	if err := res.Decode(&judge); err != nil {
		return nil, w.fail(agent.StageEvaluate, fmt.Errorf("decode judge result: %w", err))
	}

	rec, ok := w.store.Amend(recordID, store.EvaluationPatch(&judge))
	if !ok {
		slog.Warn("evaluation dropped: record gone", "record_id", recordID)
	}

	w.end(agent.StageEvaluate)
	return rec, nil
}

// State returns a copy of the current UI signals.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := State{
		Progress:      w.progress,
		ProgressLabel: w.progress.Label(),
		InFlight:      make(map[agent.Stage]bool, len(agent.Stages)),
		ActiveAgents:  make(map[agent.Stage]string, len(w.active)),
		Steps:         w.progress.Steps(),
		Error:         w.errMsg,
	}
	for _, s := range agent.Stages {
		st.InFlight[s] = w.inFlight[s]
	}
	for s, id := range w.active {
		st.ActiveAgents[s] = id
	}
	return st
}

// DismissError clears the surfaced error message.
func (w *Workflow) DismissError() {
	w.mu.Lock()
	w.errMsg = ""
	w.mu.Unlock()
	w.onChange()
}

// begin marks stage as in flight. It returns false, changing nothing, when
// the stage is already running.
func (w *Workflow) begin(stage agent.Stage) bool {
	w.mu.Lock()
	if w.inFlight[stage] {
		w.mu.Unlock()
		slog.Warn("stage trigger ignored: already in flight", "stage", stage)
		return false
	}
	w.inFlight[stage] = true
	w.active[stage] = w.agents.AgentFor(stage)
	w.errMsg = ""
	if stage == agent.StageDraft {
		w.progress = ProgressResearch
	}
	w.mu.Unlock()

	w.recorder.StageStarted(stage)
	w.onChange()
	return true
}

// end clears the stage's in-flight signals.
func (w *Workflow) end(stage agent.Stage) {
	w.mu.Lock()
	delete(w.inFlight, stage)
	delete(w.active, stage)
	if stage == agent.StageDraft {
		w.progress = ProgressIdle
	}
	w.mu.Unlock()
	w.onChange()
}

// fail surfaces the stage's failure message and ends the stage. Stored
// records are not touched.
func (w *Workflow) fail(stage agent.Stage, cause error) error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	msg := stageOps[stage].Fail(cause, "stage", stage, "agent_id", w.agents.AgentFor(stage))

	w.mu.Lock()
	w.errMsg = msg
	w.mu.Unlock()

	w.end(stage)
	return &StageError{Stage: stage, Message: msg}
}

// invoke performs the single remote call for stage.
func (w *Workflow) invoke(ctx context.Context, stage agent.Stage, input string) agent.Result {
	agentID := w.agents.AgentFor(stage)
	slog.Debug("invoking agent", "stage", stage, "agent_id", agentID, "input_len", len(input))

	start := time.Now()
	res := w.gateway.Invoke(ctx, input, agentID)
	w.recorder.StageFinished(stage, res.Success, time.Since(start))
	return res
}
