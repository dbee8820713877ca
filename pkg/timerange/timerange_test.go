package timerange

import (
	"testing"
	"time"
)

func mustRange(t *testing.T, start, end time.Time) TimeRange {
	t.Helper()
	r, err := New(start, end)
	if err != nil {
		t.Fatalf("unexpected error building range: %v", err)
	}
	return r
}

func TestNew_RejectsUnorderedAndEmpty(t *testing.T) {
	at := time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

	if _, err := New(at, at); err != ErrInvalidRange {
		t.Errorf("zero-length range: expected ErrInvalidRange, got %v", err)
	}
	if _, err := New(at.Add(time.Hour), at); err != ErrInvalidRange {
		t.Errorf("reversed range: expected ErrInvalidRange, got %v", err)
	}
	if _, err := New(at, at.Add(time.Hour)); err != nil {
		t.Errorf("valid range: unexpected error %v", err)
	}
}

func TestOverlaps_TouchingEndpointsAreDisjoint(t *testing.T) {
	day := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	a := mustRange(t, at(10, 0), at(11, 0))

	cases := []struct {
		name string
		b    TimeRange
		want bool
	}{
		{"identical", mustRange(t, at(10, 0), at(11, 0)), true},
		{"contained", mustRange(t, at(10, 15), at(10, 45)), true},
		{"containing", mustRange(t, at(9, 0), at(12, 0)), true},
		{"overlap start", mustRange(t, at(9, 30), at(10, 30)), true},
		{"overlap end", mustRange(t, at(10, 30), at(11, 30)), true},
		{"touching before", mustRange(t, at(9, 0), at(10, 0)), false},
		{"touching after", mustRange(t, at(11, 0), at(12, 0)), false},
		{"disjoint before", mustRange(t, at(7, 0), at(8, 0)), false},
		{"disjoint after", mustRange(t, at(13, 0), at(14, 0)), false},
		{"one minute inside end", mustRange(t, at(10, 59), at(12, 0)), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Overlaps(tc.b); got != tc.want {
				t.Errorf("a.Overlaps(%s-%s) = %v, want %v",
					tc.b.Start.Format("15:04"), tc.b.End.Format("15:04"), got, tc.want)
			}
			// Overlap is symmetric.
			if got := tc.b.Overlaps(a); got != tc.want {
				t.Errorf("symmetry broken for %s", tc.name)
			}
		})
	}
}

func TestInPast(t *testing.T) {
	now := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

	future := mustRange(t, now.Add(time.Hour), now.Add(2*time.Hour))
	if future.InPast(now) {
		t.Error("future range reported as past")
	}

	started := mustRange(t, now.Add(-time.Minute), now.Add(time.Hour))
	if !started.InPast(now) {
		t.Error("already-started range must count as past")
	}

	finished := mustRange(t, now.Add(-2*time.Hour), now.Add(-time.Hour))
	if !finished.InPast(now) {
		t.Error("finished range must count as past")
	}
}
