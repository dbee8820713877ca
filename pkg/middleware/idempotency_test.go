package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func asOwner(r *http.Request, ownerID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), OwnerIDKey, ownerID))
}

func TestIdempotencyReplaysForSameOwner(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	calls := 0
	handler := Idempotency(store, "Idempotency-Key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"booking-1"}`))
	}))

	for i := 0; i < 2; i++ {
		req := asOwner(httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil), "owner-a")
		req.Header.Set("Idempotency-Key", "retry-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if rec.Body.String() != `{"id":"booking-1"}` {
			t.Fatalf("unexpected body %q", rec.Body.String())
		}
	}
	if calls != 1 {
		t.Errorf("expected one handler invocation, got %d", calls)
	}
}

func TestIdempotencyKeysAreOwnerScoped(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	handler := Idempotency(store, "Idempotency-Key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"owner":"` + OwnerIDFrom(r.Context()) + `"}`))
	}))

	send := func(owner string) string {
		req := asOwner(httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil), owner)
		req.Header.Set("Idempotency-Key", "shared-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Body.String()
	}

	if got := send("owner-a"); got != `{"owner":"owner-a"}` {
		t.Fatalf("unexpected first response %q", got)
	}
	// Another owner reusing the same key must never see owner-a's response.
	if got := send("owner-b"); got != `{"owner":"owner-b"}` {
		t.Errorf("cached response leaked across owners: %q", got)
	}
}

func TestIdempotencyKeysAreRouteScoped(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	handler := Idempotency(store, "Idempotency-Key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.URL.Path))
	}))

	send := func(path string) string {
		req := asOwner(httptest.NewRequest(http.MethodPost, path, nil), "owner-a")
		req.Header.Set("Idempotency-Key", "shared-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Body.String()
	}

	if got := send("/api/v1/bookings"); got != "/api/v1/bookings" {
		t.Fatalf("unexpected first response %q", got)
	}
	if got := send("/api/v1/bookings/id/x/cancel"); got != "/api/v1/bookings/id/x/cancel" {
		t.Errorf("cached response leaked across routes: %q", got)
	}
}
