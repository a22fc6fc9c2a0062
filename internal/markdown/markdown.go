// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package markdown converts agent-written Markdown into HTML using goldmark.
// Raw HTML in the source is escaped: agent output is untrusted.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"postforge/internal/models"
)

// md is the configured goldmark instance, reused across calls.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,         // tables, strikethrough, autolinks, task lists
		extension.Typographer, // smart quotes and dashes
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(), // agents separate thoughts with single newlines
	),
)

// ToHTML converts Markdown source into HTML.
func ToHTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Rendered holds the HTML of a record's long-form text fields. Empty
// source fields stay empty.
type Rendered struct {
	FinalPost                string `json:"final_post,omitempty"`
	ResearchInsights         string `json:"research_insights,omitempty"`
	WorkflowSummary          string `json:"workflow_summary,omitempty"`
	HumanizationImprovements string `json:"humanization_improvements,omitempty"`
	OrchestratorNotes        string `json:"orchestrator_notes,omitempty"`
	ImprovementNotes         string `json:"improvement_notes,omitempty"`
	Recommendation           string `json:"recommendation,omitempty"`
}

type field struct {
	name string
	src  string
	dst  *string
}

// Record renders the text fields of rec that agents write as Markdown.
func Record(rec *models.ContentRecord) (*Rendered, error) {
	o := rec.Orchestrator
	out := &Rendered{}

	fields := []field{
		{"final_post", o.FinalPost, &out.FinalPost},
		{"research_insights", o.ResearchInsights, &out.ResearchInsights},
		{"workflow_summary", o.WorkflowSummary, &out.WorkflowSummary},
		{"humanization_improvements", o.HumanizationImprovements, &out.HumanizationImprovements},
		{"orchestrator_notes", o.OrchestratorNotes, &out.OrchestratorNotes},
	}
	if rec.Evaluation != nil {
		fields = append(fields,
			field{"improvement_notes", bulletList(rec.Evaluation.ImprovementNotes), &out.ImprovementNotes},
			field{"recommendation", rec.Evaluation.Recommendation, &out.Recommendation},
		)
	}

	for _, f := range fields {
		if strings.TrimSpace(f.src) == "" {
			continue
		}
		h, err := ToHTML(f.src)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", f.name, err)
		}
		*f.dst = h
	}
	return out, nil
}

// bulletList turns a list of notes into a Markdown list.
func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
	return b.String()
}
