package tariff

import (
	"testing"
	"time"
)

func TestCurrentPeriod(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want PeriodID
	}{
		{
			name: "start of period",
			now:  time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC),
			want: "2024-06-01T14:00:00Z",
		},
		{
			name: "first half hour truncates to minute zero",
			now:  time.Date(2024, 6, 1, 14, 29, 59, 0, time.UTC),
			want: "2024-06-01T14:00:00Z",
		},
		{
			name: "second half hour truncates to minute thirty",
			now:  time.Date(2024, 6, 1, 14, 30, 1, 0, time.UTC),
			want: "2024-06-01T14:30:00Z",
		},
		{
			name: "local time converts to UTC",
			now:  time.Date(2024, 6, 1, 15, 45, 0, 0, mustLondon(t)), // BST = UTC+1
			want: "2024-06-01T14:30:00Z",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentPeriod(tt.now); got != tt.want {
				t.Errorf("CurrentPeriod(%v) = %s, want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestCurrentPeriodIdempotentWithinHalfHour(t *testing.T) {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	first := CurrentPeriod(base)
	for offset := time.Second; offset < 30*time.Minute; offset += 7 * time.Minute {
		if got := CurrentPeriod(base.Add(offset)); got != first {
			t.Fatalf("period changed within the half hour at +%v: %s != %s", offset, got, first)
		}
	}
	if got := CurrentPeriod(base.Add(30 * time.Minute)); got <= first {
		t.Errorf("period did not increase across boundary: %s <= %s", got, first)
	}
}

func TestCrossedBoundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 10, 0, 0, time.UTC)

	if !CrossedBoundary("", now) {
		t.Error("empty previous period must count as crossed")
	}
	if CrossedBoundary(CurrentPeriod(now), now.Add(5*time.Minute)) {
		t.Error("same period must not count as crossed")
	}
	if !CrossedBoundary(CurrentPeriod(now), now.Add(30*time.Minute)) {
		t.Error("next period must count as crossed")
	}
}

func TestPeriodTimeRoundTrip(t *testing.T) {
	now := time.Date(2024, 11, 3, 23, 42, 0, 0, time.UTC)
	id := CurrentPeriod(now)
	parsed, err := PeriodTime(id)
	if err != nil {
		t.Fatalf("PeriodTime(%s): %v", id, err)
	}
	if !parsed.Equal(time.Date(2024, 11, 3, 23, 30, 0, 0, time.UTC)) {
		t.Errorf("round trip got %v", parsed)
	}
}

func mustLondon(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("loading Europe/London: %v", err)
	}
	return loc
}
