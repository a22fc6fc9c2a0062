package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoResult is recorded when the platform reports success but sends no
// structured result.
var ErrNoResult = errors.New("agent: response has no result")

// HTTPConfig holds the agent platform endpoint and credentials.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
}

// HTTPGateway implements Gateway against the agent platform's HTTP API
// (POST {BaseURL}/agent).
type HTTPGateway struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPGateway creates a gateway. The HTTP client has no timeout: an agent
// run lasts as long as the platform needs, and the caller's context is the
// only way to stop waiting.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPGateway{
		config: cfg,
		client: &http.Client{},
	}
}

// Invoke sends input to agentID and normalizes the reply.
func (g *HTTPGateway) Invoke(ctx context.Context, input, agentID string) Result {
	payload, err := json.Marshal(invokeRequest{Message: input, AgentID: agentID})
	if err != nil {
		return Failed(fmt.Errorf("agent marshal: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/agent", bytes.NewReader(payload))
	if err != nil {
		return Failed(fmt.Errorf("agent request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("x-api-key", g.config.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Failed(fmt.Errorf("agent http: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed(fmt.Errorf("agent read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failed(fmt.Errorf("agent API error (status %d): %s", resp.StatusCode, truncate(string(body), 200)))
	}

	return parseEnvelope(body)
}

// parseEnvelope turns a raw platform response into a Result.
func parseEnvelope(body []byte) Result {
	var env invokeResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return Failed(fmt.Errorf("agent unmarshal: %w", err))
	}

	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		return Failed(errors.New(msg))
	}

	if env.Response == nil || isNull(env.Response.Result) {
		return Failed(ErrNoResult)
	}

	res := Result{
		Success: true,
		Payload: env.Response.Result,
	}
	if env.ModuleOutputs != nil {
		res.Artifacts = parseArtifacts(env.ModuleOutputs.ArtifactFiles)
	}
	return res
}

// parseArtifacts decodes the artifact list, tolerating anything that is not
// a JSON array by returning an empty list.
func parseArtifacts(raw json.RawMessage) []Artifact {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]Artifact, 0, len(items))
	for _, item := range items {
		var a Artifact
		if err := json.Unmarshal(item, &a); err != nil || a.FileURL == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// --- Agent platform request/response types ---

type invokeRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agent_id"`
}

type invokeResponse struct {
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	Response      *invokeResult    `json:"response,omitempty"`
	ModuleOutputs *invokeModuleOut `json:"module_outputs,omitempty"`
}

type invokeResult struct {
	Result json.RawMessage `json:"result"`
}

type invokeModuleOut struct {
	ArtifactFiles json.RawMessage `json:"artifact_files"`
}
