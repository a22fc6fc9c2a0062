package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testStore returns a session store backed by an in-process miniredis.
func testStore(t *testing.T, secure bool) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, secure), mr
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("expected session cookie to be set")
	return nil
}

func TestSessionCreateAndGet(t *testing.T) {
	store, mr := testStore(t, false)

	w := httptest.NewRecorder()
	ctx := context.Background()

	data := &Data{Email: "operator@postforge.local"}
	sessionID, err := store.Create(ctx, w, data)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(sessionID) != 2*idLength {
		t.Errorf("session ID length = %d, want %d", len(sessionID), 2*idLength)
	}
	if data.ID != sessionID {
		t.Errorf("data.ID = %q, want %q", data.ID, sessionID)
	}

	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly cookie")
	}
	if cookie.Secure {
		t.Error("expected Secure=false for non-secure store")
	}

	if !mr.Exists(keyPrefix + sessionID) {
		t.Fatal("session key not written")
	}
	if ttl := mr.TTL(keyPrefix + sessionID); ttl != DefaultTTL {
		t.Errorf("TTL = %v, want %v", ttl, DefaultTTL)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)

	retrieved, err := store.Get(ctx, req)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected session data, got nil")
	}
	if retrieved.Email != "operator@postforge.local" {
		t.Errorf("email: got %q", retrieved.Email)
	}
	if retrieved.ID != sessionID {
		t.Errorf("ID: got %q, want %q", retrieved.ID, sessionID)
	}
	if retrieved.TwoFADone {
		t.Error("expected TwoFADone=false on a fresh session")
	}
}

func TestSessionGetNoCookie(t *testing.T) {
	store, _ := testStore(t, false)

	data, err := store.Get(context.Background(), httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Get (no cookie): %v", err)
	}
	if data != nil {
		t.Error("expected nil for request without session cookie")
	}
}

func TestSessionGetExpired(t *testing.T) {
	store, mr := testStore(t, false)

	w := httptest.NewRecorder()
	if _, err := store.Create(context.Background(), w, &Data{Email: "a@b.c"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mr.FastForward(DefaultTTL + time.Second)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(sessionCookie(t, w))

	data, err := store.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("Get (expired): %v", err)
	}
	if data != nil {
		t.Error("expected nil for expired session")
	}
}

func TestSessionGetCorrupt(t *testing.T) {
	store, mr := testStore(t, false)
	mr.Set(keyPrefix+"bad", "not json")

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "bad"})

	if _, err := store.Get(context.Background(), req); err == nil {
		t.Error("expected unmarshal error")
	}
}

func TestSessionUpdate(t *testing.T) {
	store, _ := testStore(t, false)

	w := httptest.NewRecorder()
	ctx := context.Background()

	data := &Data{Email: "update@session.local"}
	store.Create(ctx, w, data)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(sessionCookie(t, w))

	data.TwoFADone = true
	if err := store.Update(ctx, req, data); err != nil {
		t.Fatalf("Update: %v", err)
	}

	retrieved, _ := store.Get(ctx, req)
	if retrieved == nil {
		t.Fatal("expected session after update")
	}
	if !retrieved.TwoFADone {
		t.Error("expected TwoFADone=true after update")
	}
}

func TestSessionUpdateNoCookie(t *testing.T) {
	store, _ := testStore(t, false)

	err := store.Update(context.Background(), httptest.NewRequest("GET", "/", nil), &Data{})
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("Update = %v, want ErrNoSession", err)
	}
}

func TestSessionDestroy(t *testing.T) {
	store, mr := testStore(t, false)

	w := httptest.NewRecorder()
	ctx := context.Background()
	id, _ := store.Create(ctx, w, &Data{Email: "destroy@session.local"})

	w2 := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(sessionCookie(t, w))

	if err := store.Destroy(ctx, w2, req); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	for _, c := range w2.Result().Cookies() {
		if c.Name == CookieName && c.MaxAge != -1 {
			t.Error("expected MaxAge=-1 on destroyed cookie")
		}
	}
	if mr.Exists(keyPrefix + id) {
		t.Error("session key still present after destroy")
	}
}

func TestSessionDestroyNoCookie(t *testing.T) {
	store, _ := testStore(t, false)

	err := store.Destroy(context.Background(), httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Errorf("Destroy (no cookie): %v", err)
	}
}

func TestSessionSecureCookie(t *testing.T) {
	store, _ := testStore(t, true)

	w := httptest.NewRecorder()
	store.Create(context.Background(), w, &Data{Email: "secure@test.local"})

	if !sessionCookie(t, w).Secure {
		t.Error("expected Secure=true for secure store")
	}
}
