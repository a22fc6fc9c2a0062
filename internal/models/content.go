// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// FactualIntegrityPass is the judge's verdict for content whose claims hold up.
const FactualIntegrityPass = "Pass"

// ContentPackage is the publishable bundle produced by the orchestrator agent.
type ContentPackage struct {
	PostText           string   `json:"post_text"`
	Hashtags           []string `json:"hashtags"`
	EngagementElements []string `json:"engagement_elements"`
	SourceReferences   []string `json:"source_references"`
}

// OrchestratorResult is the structured draft returned by the content
// orchestrator. It is the only part of a ContentRecord that must exist.
type OrchestratorResult struct {
	InputType                string          `json:"input_type,omitempty"`
	WorkflowSummary          string          `json:"workflow_summary,omitempty"`
	ResearchInsights         string          `json:"research_insights,omitempty"`
	FinalPost                string          `json:"final_post,omitempty"`
	ValidationStatus         string          `json:"validation_status,omitempty"`
	HumanizationImprovements string          `json:"humanization_improvements,omitempty"`
	ContentPackage           *ContentPackage `json:"content_package,omitempty"`
	OrchestratorNotes        string          `json:"orchestrator_notes,omitempty"`
}

// PrimaryText returns the post body a reviewer starts editing from:
// the final post, or the packaged post text when the final post is empty.
func (o *OrchestratorResult) PrimaryText() string {
	if o.FinalPost != "" {
		return o.FinalPost
	}
	if o.ContentPackage != nil {
		return o.ContentPackage.PostText
	}
	return ""
}

// CarouselConcept describes one slide of a proposed carousel post.
type CarouselConcept struct {
	SlideNumber       int    `json:"slide_number"`
	SlideContent      string `json:"slide_content"`
	VisualDescription string `json:"visual_description"`
}

// VisualResult is the visual concept returned by the visual intelligence agent.
type VisualResult struct {
	SingleImageConcept  string            `json:"single_image_concept,omitempty"`
	CarouselConcepts    []CarouselConcept `json:"carousel_concepts,omitempty"`
	InfographicConcept  string            `json:"infographic_concept,omitempty"`
	ImagePrompt         string            `json:"dall_e_prompt,omitempty"`
	ColorPalette        []string          `json:"color_palette,omitempty"`
	VisualStyle         string            `json:"visual_style,omitempty"`
	EngagementRationale string            `json:"engagement_rationale,omitempty"`
}

// JudgeResult is the quality evaluation returned by the judge agent.
// Sub-scores range from 0 to 10.
type JudgeResult struct {
	ClarityScore             *float64 `json:"clarity_score,omitempty"`
	OriginalityScore         *float64 `json:"originality_score,omitempty"`
	AuthorityScore           *float64 `json:"authority_score,omitempty"`
	AuthenticityScore        *float64 `json:"authenticity_score,omitempty"`
	EngagementPotentialScore *float64 `json:"engagement_potential_score,omitempty"`
	FactualIntegrity         string   `json:"factual_integrity,omitempty"`
	OverallAverage           *float64 `json:"overall_average,omitempty"`
	PublicationReady         bool     `json:"publication_ready"`
	ImprovementNotes         []string `json:"improvement_notes,omitempty"`
	Strengths                []string `json:"strengths,omitempty"`
	Weaknesses               []string `json:"weaknesses,omitempty"`
	Recommendation           string   `json:"judge_recommendation,omitempty"`
}

// Overall returns the judge's overall average, deriving it from the five
// sub-scores (missing ones count as zero) when the judge left it out.
func (j *JudgeResult) Overall() float64 {
	if j.OverallAverage != nil {
		return *j.OverallAverage
	}
	var sum float64
	for _, s := range []*float64{
		j.ClarityScore, j.OriginalityScore, j.AuthorityScore,
		j.AuthenticityScore, j.EngagementPotentialScore,
	} {
		if s != nil {
			sum += *s
		}
	}
	return sum / 5
}

// FactualIntegrityPassed reports whether the judge marked the claims as sound.
func (j *JudgeResult) FactualIntegrityPassed() bool {
	return j.FactualIntegrity == FactualIntegrityPass
}

// ContentRecord is one generated post moving through the review pipeline.
// Orchestrator is set when the record is created; Visual and Evaluation are
// nil until their stages succeed and are replaced wholesale on reruns.
type ContentRecord struct {
	ID           uuid.UUID          `json:"id"`
	Orchestrator OrchestratorResult `json:"orchestrator"`
	Visual       *VisualResult      `json:"visual"`
	VisualImages []string           `json:"visual_images"`
	Evaluation   *JudgeResult       `json:"evaluation"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Clone returns a deep copy that shares no slices or pointers with r.
func (r *ContentRecord) Clone() *ContentRecord {
	c := *r
	c.Orchestrator = r.Orchestrator.clone()
	if r.Visual != nil {
		v := *r.Visual
		v.CarouselConcepts = append([]CarouselConcept(nil), r.Visual.CarouselConcepts...)
		v.ColorPalette = append([]string(nil), r.Visual.ColorPalette...)
		c.Visual = &v
	}
	c.VisualImages = append([]string(nil), r.VisualImages...)
	if r.Evaluation != nil {
		e := *r.Evaluation
		e.ClarityScore = cloneScore(r.Evaluation.ClarityScore)
		e.OriginalityScore = cloneScore(r.Evaluation.OriginalityScore)
		e.AuthorityScore = cloneScore(r.Evaluation.AuthorityScore)
		e.AuthenticityScore = cloneScore(r.Evaluation.AuthenticityScore)
		e.EngagementPotentialScore = cloneScore(r.Evaluation.EngagementPotentialScore)
		e.OverallAverage = cloneScore(r.Evaluation.OverallAverage)
		e.ImprovementNotes = append([]string(nil), r.Evaluation.ImprovementNotes...)
		e.Strengths = append([]string(nil), r.Evaluation.Strengths...)
		e.Weaknesses = append([]string(nil), r.Evaluation.Weaknesses...)
		c.Evaluation = &e
	}
	return &c
}

func (o OrchestratorResult) clone() OrchestratorResult {
	if o.ContentPackage != nil {
		p := *o.ContentPackage
		p.Hashtags = append([]string(nil), o.ContentPackage.Hashtags...)
		p.EngagementElements = append([]string(nil), o.ContentPackage.EngagementElements...)
		p.SourceReferences = append([]string(nil), o.ContentPackage.SourceReferences...)
		o.ContentPackage = &p
	}
	return o
}

func cloneScore(s *float64) *float64 {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
