// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router tests verify the HTTP routing configuration, middleware
// chains, and the health endpoint.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"postforge/internal/agent"
	"postforge/internal/handlers"
	"postforge/internal/metrics"
	"postforge/internal/middleware"
	"postforge/internal/models"
	"postforge/internal/session"
	"postforge/internal/studio"
)

type offlineAgents struct{}

func (offlineAgents) Invoke(context.Context, string, string) agent.Result {
	return agent.Failed(errors.New("offline"))
}

type offlineScheduler struct{}

var errOffline = errors.New("offline")

func (offlineScheduler) GetStatus(context.Context, string) (*models.ScheduleStatus, error) {
	return nil, errOffline
}
func (offlineScheduler) Pause(context.Context, string) error  { return errOffline }
func (offlineScheduler) Resume(context.Context, string) error { return errOffline }
func (offlineScheduler) GetHistory(context.Context, string, int) ([]models.RunHistoryItem, error) {
	return nil, errOffline
}

func testRouter(t *testing.T) chi.Router {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sessions := session.NewStore(client, false)

	manager := studio.NewManager(studio.Config{
		Agents:    offlineAgents{},
		Scheduler: offlineScheduler{},
	})
	t.Cleanup(manager.Close)

	st := handlers.NewStudio(manager)
	stream := handlers.NewStream(st)
	t.Cleanup(stream.Close)
	login := middleware.NewRateLimiter(2, time.Minute)
	t.Cleanup(login.Stop)

	return New(Deps{
		Sessions:     sessions,
		Auth:         handlers.NewAuth(sessions, manager, handlers.Operator{Email: "operator@postforge.local"}, true),
		Studio:       st,
		Schedule:     handlers.NewSchedule(st),
		Stream:       stream,
		Metrics:      metrics.New().Handler(),
		LoginLimiter: login,
	})
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)

	healthHandler(w, r)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("content-type: got %q, want %q", ct, "application/json")
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field: got %q, want %q", body["status"], "ok")
	}
}

func TestRoutesWithoutSession(t *testing.T) {
	r := testRouter(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/studio", http.StatusUnauthorized},
		{http.MethodGet, "/studio/history", http.StatusUnauthorized},
		{http.MethodGet, "/studio/schedule", http.StatusUnauthorized},
		{http.MethodGet, "/studio/stream", http.StatusUnauthorized},
		{http.MethodGet, "/auth/me", http.StatusUnauthorized},
		{http.MethodPost, "/auth/login", http.StatusForbidden}, // no CSRF token
		{http.MethodPost, "/studio/draft", http.StatusForbidden},
		{http.MethodGet, "/admin", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestSecureHeadersOnEveryRoute(t *testing.T) {
	r := testRouter(t)

	for _, path := range []string{"/health", "/studio"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("%s X-Frame-Options: got %q", path, got)
		}
	}
}

func TestMetricsExposition(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output lacks runtime collectors")
	}
}

// TestLoginThenStudio walks the development login through the full
// middleware chain: CSRF cookie, login, then an authenticated snapshot.
func TestLoginThenStudio(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	var csrf *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.CSRFCookieName {
			csrf = c
		}
	}
	if csrf == nil {
		t.Fatal("no CSRF cookie issued")
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"operator@postforge.local","password":"dev"}`))
	req.AddCookie(csrf)
	req.Header.Set(middleware.CSRFHeaderName, csrf.Value)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status: got %d (%s)", rec.Code, rec.Body.String())
	}

	var sess *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			sess = c
		}
	}
	if sess == nil {
		t.Fatal("login set no session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/studio", nil)
	req.AddCookie(sess)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("studio status: got %d (%s)", rec.Code, rec.Body.String())
	}

	var snap studio.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SessionID != sess.Value {
		t.Errorf("snapshot session: got %q, want %q", snap.SessionID, sess.Value)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	r := testRouter(t)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
		req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "tok"})
		req.Header.Set(middleware.CSRFHeaderName, "tok")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third login status: got %d, want 429", last)
	}
}
