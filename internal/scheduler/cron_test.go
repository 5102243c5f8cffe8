package scheduler

import (
	"testing"
	"time"

	"github.com/shaiso/Formata/internal/domain"
)

// --- CalculateNextDue Tests ---

func TestCalculateNextDue_Cron(t *testing.T) {
	window := &domain.SubmissionWindow{
		CronExpr: "0 9 * * 1-5", // будни в 9:00
		Timezone: "UTC",
	}

	// Среда 10:00 — следующее открытие в четверг 9:00
	from := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(window, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCalculateNextDue_CronSkipsWeekend(t *testing.T) {
	window := &domain.SubmissionWindow{
		CronExpr: "0 9 * * 1-5",
		Timezone: "UTC",
	}

	// Пятница 10:00 — следующее открытие в понедельник 9:00
	from := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(window, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCalculateNextDue_Interval(t *testing.T) {
	window := &domain.SubmissionWindow{
		IntervalSec: 3600,
		Timezone:    "UTC",
	}

	from := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(window, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := from.Add(time.Hour)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCalculateNextDue_Timezone(t *testing.T) {
	window := &domain.SubmissionWindow{
		CronExpr: "0 9 * * *",
		Timezone: "America/New_York",
	}

	// 12:00 UTC = 07:00 EST — следующее открытие 9:00 EST = 14:00 UTC
	from := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(window, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCalculateNextDue_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	window := &domain.SubmissionWindow{
		IntervalSec: 60,
		Timezone:    "Not/AZone",
	}

	from := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(window, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(from.Add(time.Minute)) {
		t.Errorf("next = %v, want %v", next, from.Add(time.Minute))
	}
}

func TestCalculateNextDue_NeitherCronNorInterval(t *testing.T) {
	window := &domain.SubmissionWindow{Timezone: "UTC"}

	if _, err := CalculateNextDue(window, time.Now()); err == nil {
		t.Error("expected error for window without schedule")
	}
}

// --- ValidateCronExpr Tests ---

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"0 9 * * 1-5", "*/15 * * * *", "30 8 1 * *"}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("ValidateCronExpr(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{"", "not a cron", "99 * * * *", "* * * *"}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("ValidateCronExpr(%q) should fail", expr)
		}
	}
}

// --- SubmissionWindow Tests ---

func TestSubmissionWindow_IsDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name   string
		window domain.SubmissionWindow
		want   bool
	}{
		{"due", domain.SubmissionWindow{Enabled: true, NextDueAt: &past}, true},
		{"not yet", domain.SubmissionWindow{Enabled: true, NextDueAt: &future}, false},
		{"disabled", domain.SubmissionWindow{Enabled: false, NextDueAt: &past}, false},
		{"no next due", domain.SubmissionWindow{Enabled: true}, false},
	}

	for _, tt := range tests {
		if got := tt.window.IsDue(now); got != tt.want {
			t.Errorf("%s: IsDue = %v, want %v", tt.name, got, tt.want)
		}
	}
}
