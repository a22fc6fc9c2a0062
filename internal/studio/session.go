// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package studio holds the explicit application state of one operator
// session: the visible screen, the content brief, the generation workflow
// with its record store, and the schedule controller. Every operator action
// goes through one method on Session, and every state change is broadcast
// to subscribers (the WebSocket stream).
package studio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"postforge/internal/models"
	"postforge/internal/schedule"
	"postforge/internal/store"
	"postforge/internal/workflow"
)

// Screen is one of the studio's views.
type Screen string

const (
	ScreenDashboard Screen = "dashboard"
	ScreenInput     Screen = "input"
	ScreenOutput    Screen = "output"
	ScreenSchedule  Screen = "schedule"
)

// ErrUnknownScreen is returned by Navigate for names outside the screen set.
var ErrUnknownScreen = errors.New("studio: unknown screen")

// Valid reports whether s names a known screen.
func (s Screen) Valid() bool {
	switch s {
	case ScreenDashboard, ScreenInput, ScreenOutput, ScreenSchedule:
		return true
	}
	return false
}

// Snapshot is the full UI-facing state of a session at one instant.
type Snapshot struct {
	SessionID    string                `json:"session_id"`
	Screen       Screen                `json:"screen"`
	Brief        workflow.Brief        `json:"brief"`
	Workflow     workflow.State        `json:"workflow"`
	Current      *models.ContentRecord `json:"current,omitempty"`
	PostText     string                `json:"post_text"`
	HistoryCount int                   `json:"history_count"`
	Stats        store.Stats           `json:"stats"`
	Schedule     schedule.State        `json:"schedule"`
}

// Session is the application state for one operator session.
type Session struct {
	id       string
	content  *store.ContentStore
	workflow *workflow.Workflow
	schedule *schedule.Controller

	mu       sync.Mutex
	screen   Screen
	brief    workflow.Brief
	lastSeen time.Time
	nextSub  int
	subs     map[int]chan struct{}
}

// Subscribe returns a channel that receives a signal after every state
// change, and a function that cancels the subscription. Signals coalesce:
// a slow reader sees at least one pending signal, never a backlog.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// notify signals every subscriber without blocking.
func (s *Session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Navigate switches the visible screen.
func (s *Session) Navigate(screen Screen) error {
	if !screen.Valid() {
		return ErrUnknownScreen
	}
	s.mu.Lock()
	s.screen = screen
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetBrief replaces the content brief used by the next draft.
func (s *Session) SetBrief(b workflow.Brief) {
	s.mu.Lock()
	s.brief = b
	s.mu.Unlock()
	s.notify()
}

// SetPostText replaces the operator-edited post text.
func (s *Session) SetPostText(text string) {
	s.content.SetEditablePostText(text)
	s.notify()
}

// Draft runs the draft stage with the current brief. On success the output
// screen is shown.
func (s *Session) Draft(ctx context.Context) (*models.ContentRecord, error) {
	s.mu.Lock()
	brief := s.brief
	s.mu.Unlock()

	rec, err := s.workflow.Draft(ctx, brief)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.screen = ScreenOutput
	s.mu.Unlock()
	s.notify()
	return rec, nil
}

// Visualize runs the visual stage on the post under review.
func (s *Session) Visualize(ctx context.Context) (*models.ContentRecord, error) {
	return s.workflow.Visualize(ctx)
}

// Evaluate runs the judge stage on the post under review.
func (s *Session) Evaluate(ctx context.Context) (*models.ContentRecord, error) {
	return s.workflow.Evaluate(ctx)
}

// ToggleSchedule pauses or resumes the recurring job.
func (s *Session) ToggleSchedule(ctx context.Context) error {
	return s.schedule.Toggle(ctx)
}

// RefreshSchedule reloads schedule status and run history.
func (s *Session) RefreshSchedule(ctx context.Context) {
	s.schedule.Refresh(ctx)
}

// Schedule returns the cached schedule view.
func (s *Session) Schedule() schedule.State {
	return s.schedule.State()
}

// DismissError clears surfaced workflow and schedule messages.
func (s *Session) DismissError() {
	s.workflow.DismissError()
	s.schedule.DismissError()
}

// History returns every record of the session, newest first.
func (s *Session) History() []models.ContentRecord {
	return s.content.History()
}

// Record returns the record with the given ID, or nil.
func (s *Session) Record(id uuid.UUID) *models.ContentRecord {
	return s.content.FindByID(id)
}

// Snapshot returns the full UI state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	screen, brief := s.screen, s.brief
	s.mu.Unlock()

	text, _, _ := s.content.PostText()
	return Snapshot{
		SessionID:    s.id,
		Screen:       screen,
		Brief:        brief,
		Workflow:     s.workflow.State(),
		Current:      s.content.Current(),
		PostText:     text,
		HistoryCount: s.content.Len(),
		Stats:        s.content.Stats(),
		Schedule:     s.schedule.State(),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
