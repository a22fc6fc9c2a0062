// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package agent talks to the remote AI agent platform. A Gateway sends one
// message to one named agent and normalizes the reply into a Result whose
// only meaningful distinction is success versus failure.
package agent

import (
	"context"
	"encoding/json"
)

// Gateway invokes a single remote agent. Implementations never retry and
// never return a Go error: every failure collapses to Result{Success: false}.
type Gateway interface {
	Invoke(ctx context.Context, input, agentID string) Result
}

// Artifact is a file produced by an agent run (for example a rendered image).
type Artifact struct {
	FileURL string `json:"file_url"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"file_type,omitempty"`
}

// Result is the normalized outcome of an agent call.
type Result struct {
	Success bool

	// Payload is the agent's structured result (response.result).
	Payload json.RawMessage

	// Artifacts lists files attached to the run. Empty when the platform
	// sent none or sent something that is not a list.
	Artifacts []Artifact

	// Err records why the call failed. It is for logs only; callers decide
	// on Success alone.
	Err error
}

// Failed builds a failure result carrying err for logging.
func Failed(err error) Result {
	return Result{Err: err}
}

// Decode unmarshals the payload into v.
func (r Result) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}

// ArtifactURLs returns the file URLs of all artifacts, skipping empty ones.
func (r Result) ArtifactURLs() []string {
	urls := make([]string, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		if a.FileURL != "" {
			urls = append(urls, a.FileURL)
		}
	}
	return urls
}
