// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store holds the generated content of one studio session in memory.
// History is append-at-head only: records are never removed or reordered.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"postforge/internal/models"
)

// Patch replaces later-stage results on an existing record. Only non-nil
// results are applied; a visual result always replaces the image list with it.
type Patch struct {
	Visual       *models.VisualResult
	VisualImages []string
	Evaluation   *models.JudgeResult
}

// VisualPatch builds a patch carrying a visual result and its asset URLs.
func VisualPatch(v *models.VisualResult, images []string) Patch {
	if v == nil {
		v = &models.VisualResult{}
	}
	return Patch{Visual: v, VisualImages: images}
}

// EvaluationPatch builds a patch carrying a judge result.
func EvaluationPatch(j *models.JudgeResult) Patch {
	if j == nil {
		j = &models.JudgeResult{}
	}
	return Patch{Evaluation: j}
}

// Stats summarizes the history for the dashboard.
type Stats struct {
	Total            int     `json:"total"`
	Evaluated        int     `json:"evaluated"`
	AverageScore     float64 `json:"average_score"`
	PublicationReady int     `json:"publication_ready"`
}

// ContentStore keeps the session's content history and the record under
// review. The current record and its history entry are the same object, so
// an amendment is visible through both. All methods are safe for concurrent
// use and hand out copies.
type ContentStore struct {
	mu       sync.RWMutex
	history  []*models.ContentRecord // newest first
	byID     map[uuid.UUID]*models.ContentRecord
	current  *models.ContentRecord
	editable string
	now      func() time.Time
}

// NewContentStore creates an empty store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		byID: make(map[uuid.UUID]*models.ContentRecord),
		now:  time.Now,
	}
}

// CreateRecord stores a freshly drafted post at the head of the history,
// makes it current and seeds the editable post text from it.
func (s *ContentStore) CreateRecord(orchestrator models.OrchestratorResult) *models.ContentRecord {
	rec := &models.ContentRecord{
		ID:           uuid.New(),
		Orchestrator: orchestrator,
		CreatedAt:    s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append([]*models.ContentRecord{rec}, s.history...)
	s.byID[rec.ID] = rec
	s.current = rec
	s.editable = orchestrator.PrimaryText()

	return rec.Clone()
}

// AmendCurrent applies p to the current record. When there is no current
// record the patch is dropped and ok is false. It is the unpinned form of
// Amend: results computed for whatever is under review at apply time. The
// workflow stages pin the record they read their input from and use Amend,
// so a newer draft never receives another record's results.
func (s *ContentStore) AmendCurrent(p Patch) (*models.ContentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, false
	}
	applyPatch(s.current, p)
	return s.current.Clone(), true
}

// Amend applies p to the record with the given ID, whether or not it is
// still current. Unknown IDs are dropped and ok is false.
func (s *ContentStore) Amend(id uuid.UUID, p Patch) (*models.ContentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	applyPatch(rec, p)
	return rec.Clone(), true
}

func applyPatch(rec *models.ContentRecord, p Patch) {
	if p.Visual != nil {
		rec.Visual = p.Visual
		rec.VisualImages = append([]string{}, p.VisualImages...)
	}
	if p.Evaluation != nil {
		rec.Evaluation = p.Evaluation
	}
}

// Current returns a copy of the record under review, or nil.
func (s *ContentStore) Current() *models.ContentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	return s.current.Clone()
}

// FindByID returns a copy of the record with the given ID, or nil.
func (s *ContentStore) FindByID(id uuid.UUID) *models.ContentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil
	}
	return rec.Clone()
}

// History returns copies of all records, newest first.
func (s *ContentStore) History() []models.ContentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ContentRecord, len(s.history))
	for i, rec := range s.history {
		out[i] = *rec.Clone()
	}
	return out
}

// Len returns the number of records in the history.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// EditablePostText returns the operator's working copy of the post.
func (s *ContentStore) EditablePostText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.editable
}

// SetEditablePostText replaces the operator's working copy of the post.
func (s *ContentStore) SetEditablePostText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editable = text
}

// PostText returns the text later stages should work on: the operator's
// edit when there is one, otherwise the current record's final post.
// The record ID is returned alongside so results can be pinned to it;
// ok is false when there is no current record.
func (s *ContentStore) PostText() (text string, id uuid.UUID, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return "", uuid.Nil, false
	}
	if s.editable != "" {
		return s.editable, s.current.ID, true
	}
	return s.current.Orchestrator.FinalPost, s.current.ID, true
}

// Stats computes dashboard figures over the whole history.
func (s *ContentStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.history)}
	var sum float64
	for _, rec := range s.history {
		if rec.Evaluation == nil {
			continue
		}
		st.Evaluated++
		sum += rec.Evaluation.Overall()
		if rec.Evaluation.PublicationReady {
			st.PublicationReady++
		}
	}
	if st.Evaluated > 0 {
		st.AverageScore = sum / float64(st.Evaluated)
	}
	return st
}
