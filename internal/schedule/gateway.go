// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package schedule manages the recurring generation job: a gateway to the
// remote scheduler, a controller that caches its state for the studio, and
// a cron describer for display.
package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"postforge/internal/models"
)

// Gateway reads and mutates the remote state of a recurring job.
type Gateway interface {
	GetStatus(ctx context.Context, scheduleID string) (*models.ScheduleStatus, error)
	Pause(ctx context.Context, scheduleID string) error
	Resume(ctx context.Context, scheduleID string) error
	GetHistory(ctx context.Context, scheduleID string, limit int) ([]models.RunHistoryItem, error)
}

// HTTPConfig holds the scheduler endpoint and credentials.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
}

// HTTPGateway implements Gateway against the scheduler's HTTP API.
type HTTPGateway struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPGateway creates a scheduler gateway.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPGateway{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetStatus fetches the job's current status.
func (g *HTTPGateway) GetStatus(ctx context.Context, scheduleID string) (*models.ScheduleStatus, error) {
	body, err := g.do(ctx, http.MethodGet, g.schedulePath(scheduleID, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("schedule status: %w", err)
	}

	var status models.ScheduleStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("schedule status unmarshal: %w", err)
	}
	return &status, nil
}

// Pause stops future runs of the job.
func (g *HTTPGateway) Pause(ctx context.Context, scheduleID string) error {
	if _, err := g.do(ctx, http.MethodPost, g.schedulePath(scheduleID, "/pause"), nil); err != nil {
		return fmt.Errorf("schedule pause: %w", err)
	}
	return nil
}

// Resume re-enables future runs of the job.
func (g *HTTPGateway) Resume(ctx context.Context, scheduleID string) error {
	if _, err := g.do(ctx, http.MethodPost, g.schedulePath(scheduleID, "/resume"), nil); err != nil {
		return fmt.Errorf("schedule resume: %w", err)
	}
	return nil
}

// GetHistory fetches up to limit most recent runs. The scheduler may answer
// with a bare list or with {"runs": [...]}.
func (g *HTTPGateway) GetHistory(ctx context.Context, scheduleID string, limit int) ([]models.RunHistoryItem, error) {
	path := g.schedulePath(scheduleID, "/runs") + "?limit=" + strconv.Itoa(limit)
	body, err := g.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("schedule history: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	var runs []models.RunHistoryItem
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &runs); err != nil {
			return nil, fmt.Errorf("schedule history unmarshal: %w", err)
		}
	} else {
		var wrapped struct {
			Runs []models.RunHistoryItem `json:"runs"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("schedule history unmarshal: %w", err)
		}
		runs = wrapped.Runs
	}

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (g *HTTPGateway) schedulePath(scheduleID, suffix string) string {
	return g.config.BaseURL + "/schedules/" + url.PathEscape(scheduleID) + suffix
}

// do performs one request and returns the body of a 2xx response.
func (g *HTTPGateway) do(ctx context.Context, method, url string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.config.APIKey != "" {
		req.Header.Set("x-api-key", g.config.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("scheduler API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
