// Integration tests for the bookings API. They run against a live server:
//
//	TEST_SERVER_URL  base URL of a running bookings service
//	SESSION_KEY      the same key the server was started with
//
// Without TEST_SERVER_URL the suite skips.
package integrationtests

import (
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"slotbook/pkg/model"
	"slotbook/pkg/session"
	"slotbook/test/integration/testutil"
)

func newSuite(t *testing.T, ownerID string) *testutil.Client {
	t.Helper()

	serverURL := os.Getenv("TEST_SERVER_URL")
	if serverURL == "" {
		t.Skip("TEST_SERVER_URL not set; skipping integration tests")
	}

	key := os.Getenv("SESSION_KEY")
	sealer, err := session.NewSealer(key)
	if err != nil {
		t.Fatalf("SESSION_KEY must match the server's key: %v", err)
	}
	token, err := sealer.Seal(ownerID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to mint session token: %v", err)
	}

	client := testutil.NewClient(serverURL, token)
	client.WaitForHealthy(t, 30*time.Second)
	return client
}

func bookingBody(title string, start, end time.Time) map[string]any {
	return map[string]any{
		"title":      title,
		"start_time": start.Format(time.RFC3339),
		"end_time":   end.Format(time.RFC3339),
	}
}

func decodeBooking(t *testing.T, resp *testutil.Response) *model.Booking {
	t.Helper()
	var result struct {
		Data model.Booking `json:"data"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		t.Fatalf("failed to decode booking: %v", err)
	}
	return &result.Data
}

func TestBookingLifecycle(t *testing.T) {
	owner := fmt.Sprintf("it-owner-%d", time.Now().UnixNano())
	client := newSuite(t, owner)

	base := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Hour)

	// Create
	resp := client.POST(t, "/api/v1/bookings", bookingBody("Initial slot", base, base.Add(time.Hour)))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	created := decodeBooking(t, resp)
	if created.ID == "" {
		t.Fatal("expected created booking to carry an id")
	}
	if created.OwnerID != owner {
		t.Errorf("expected session owner %q, got %q", owner, created.OwnerID)
	}

	// Read back
	resp = client.GET(t, "/api/v1/bookings/id/"+created.ID)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	// Overlapping create rejects with the local_overlap reason
	resp = client.POST(t, "/api/v1/bookings", bookingBody("Overlapping slot", base.Add(30*time.Minute), base.Add(90*time.Minute)))
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	testutil.AssertContains(t, resp, "local_overlap")

	// Touching ranges are disjoint
	resp = client.POST(t, "/api/v1/bookings", bookingBody("Adjacent slot", base.Add(time.Hour), base.Add(2*time.Hour)))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	adjacent := decodeBooking(t, resp)

	// Reschedule the first booking into a free range
	resp = client.PATCH(t, "/api/v1/bookings/id/"+created.ID, map[string]any{
		"start_time": base.Add(3 * time.Hour).Format(time.RFC3339),
		"end_time":   base.Add(4 * time.Hour).Format(time.RFC3339),
	})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	// Rescheduling onto the adjacent booking rejects
	resp = client.PATCH(t, "/api/v1/bookings/id/"+created.ID, map[string]any{
		"start_time": base.Add(time.Hour).Format(time.RFC3339),
		"end_time":   base.Add(2 * time.Hour).Format(time.RFC3339),
	})
	testutil.AssertStatusCode(t, resp, http.StatusConflict)

	// List shows both active bookings
	resp = client.GET(t, "/api/v1/bookings?status=active")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var listing struct {
		Data       []model.Booking `json:"data"`
		TotalCount int64           `json:"total_count"`
	}
	if err := resp.DecodeJSON(&listing); err != nil {
		t.Fatalf("failed to decode listing: %v", err)
	}
	if listing.TotalCount != 2 {
		t.Errorf("expected 2 active bookings, got %d", listing.TotalCount)
	}

	// Cancel, then cancel again
	resp = client.POST(t, "/api/v1/bookings/id/"+adjacent.ID+"/cancel", nil)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	resp = client.GET(t, "/api/v1/bookings/id/"+adjacent.ID)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	cancelled := decodeBooking(t, resp)

	resp = client.POST(t, "/api/v1/bookings/id/"+adjacent.ID+"/cancel", nil)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	testutil.AssertContains(t, resp, "already_cancelled")

	// The rejected second cancel leaves the document untouched
	resp = client.GET(t, "/api/v1/bookings/id/"+adjacent.ID)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	untouched := decodeBooking(t, resp)
	if !untouched.UpdatedAt.Equal(cancelled.UpdatedAt) {
		t.Errorf("second cancel must not change updated_at: %v -> %v", cancelled.UpdatedAt, untouched.UpdatedAt)
	}

	// Cancelled slot is free for new bookings
	resp = client.POST(t, "/api/v1/bookings", bookingBody("Reclaimed slot", base.Add(time.Hour), base.Add(2*time.Hour)))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
}

func TestBookingValidationAndIsolation(t *testing.T) {
	owner := fmt.Sprintf("it-owner-%d", time.Now().UnixNano())
	client := newSuite(t, owner)

	base := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Hour)

	// Past ranges are rejected before any conflict evaluation
	resp := client.POST(t, "/api/v1/bookings", bookingBody("Time traveler", base.Add(-72*time.Hour), base.Add(-71*time.Hour)))
	testutil.AssertStatusCode(t, resp, http.StatusUnprocessableEntity)

	// Inverted ranges too
	resp = client.POST(t, "/api/v1/bookings", bookingBody("Backwards", base.Add(time.Hour), base))
	testutil.AssertStatusCode(t, resp, http.StatusUnprocessableEntity)

	// Another owner cannot see or touch this owner's booking
	resp = client.POST(t, "/api/v1/bookings", bookingBody("Private slot", base, base.Add(time.Hour)))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
	private := decodeBooking(t, resp)

	stranger := newSuite(t, owner+"-stranger")
	resp = stranger.GET(t, "/api/v1/bookings/id/"+private.ID)
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)

	resp = stranger.POST(t, "/api/v1/bookings/id/"+private.ID+"/cancel", nil)
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)

	// And their own calendar is unaffected by this owner's bookings
	resp = stranger.POST(t, "/api/v1/bookings", bookingBody("Same range, other owner", base, base.Add(time.Hour)))
	testutil.AssertStatusCode(t, resp, http.StatusCreated)
}
