package jobs

import (
	"testing"
	"time"
)

func TestNextCronTimeDaily(t *testing.T) {
	after := time.Date(2026, 3, 10, 14, 30, 12, 0, time.UTC)
	next, err := nextCronTime("0 3 * * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	want := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextCronTimeSameDay(t *testing.T) {
	after := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	next, err := nextCronTime("30 2 * * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	want := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextCronTimeListField(t *testing.T) {
	after := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	next, err := nextCronTime("0,15,30,45 * * * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	if next.Minute() != 15 {
		t.Fatalf("next minute = %d, want 15", next.Minute())
	}
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * *", "x * * * *", "1,y * * * *"} {
		if _, err := parseCron(expr); err == nil {
			t.Errorf("parseCron(%q) succeeded, want error", expr)
		}
	}
}
