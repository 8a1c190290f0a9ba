package domain

import (
	"testing"
	"time"
)

func TestDueAt(t *testing.T) {
	event := time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)
	r := Reminder{EventTime: event, LeadMinutes: 30}

	if want := time.Date(2024, 12, 25, 14, 0, 0, 0, time.UTC); !r.DueAt().Equal(want) {
		t.Errorf("DueAt: got %v, want %v", r.DueAt(), want)
	}

	tests := []struct {
		now  time.Time
		sent bool
		want bool
	}{
		{event.Add(-31 * time.Minute), false, false},
		{event.Add(-30 * time.Minute), false, true},
		{event.Add(24 * time.Hour), false, true},
		{event.Add(24 * time.Hour), true, false},
	}
	for _, tt := range tests {
		r.Sent = tt.sent
		if got := r.IsDue(tt.now); got != tt.want {
			t.Errorf("IsDue(%v, sent=%v): got %v, want %v", tt.now, tt.sent, got, tt.want)
		}
	}
}

func TestBefore(t *testing.T) {
	event := time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)
	created := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)

	early := Reminder{ID: "b", EventTime: event, LeadMinutes: 60, CreatedAt: created}
	late := Reminder{ID: "a", EventTime: event, LeadMinutes: 0, CreatedAt: created}
	if !early.Before(late) || late.Before(early) {
		t.Error("due time should decide order")
	}

	older := Reminder{ID: "z", EventTime: event, CreatedAt: created}
	newer := Reminder{ID: "a", EventTime: event, CreatedAt: created.Add(time.Second)}
	if !older.Before(newer) {
		t.Error("created_at should break due-time ties")
	}

	x := Reminder{ID: "x", EventTime: event, CreatedAt: created}
	y := Reminder{ID: "y", EventTime: event, CreatedAt: created}
	if !x.Before(y) || y.Before(x) {
		t.Error("id should break remaining ties")
	}
}
