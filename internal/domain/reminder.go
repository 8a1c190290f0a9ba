package domain

import "time"

// Reminder is a one-shot notification scheduled LeadMinutes before EventTime.
type Reminder struct {
	ID          string    `json:"-"`
	Owner       string    `json:"owner"`
	Title       string    `json:"title"`
	EventTime   time.Time `json:"event_time"`
	LeadMinutes int       `json:"lead_minutes"`
	CreatedAt   time.Time `json:"created_at"`
	Sent        bool      `json:"sent"`
}

// DueAt returns the instant the reminder becomes eligible for delivery.
func (r Reminder) DueAt() time.Time {
	return r.EventTime.Add(-time.Duration(r.LeadMinutes) * time.Minute)
}

// IsDue reports whether an unsent reminder has crossed its threshold at now.
func (r Reminder) IsDue(now time.Time) bool {
	return !r.Sent && !now.Before(r.DueAt())
}

// Before orders reminders by due time, then creation time, then id.
func (r Reminder) Before(other Reminder) bool {
	if !r.DueAt().Equal(other.DueAt()) {
		return r.DueAt().Before(other.DueAt())
	}
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.Before(other.CreatedAt)
	}
	return r.ID < other.ID
}

// StatusEmoji is used when rendering lists.
func (r Reminder) StatusEmoji() string {
	if r.Sent {
		return "✅"
	}
	return "🔔"
}
