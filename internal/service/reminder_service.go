package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/remindbot/internal/domain"
	"github.com/tazhate/remindbot/internal/storage"
)

// ReminderService is the only owner of reminder state. Every mutation is
// persisted as a full snapshot before it becomes visible in memory.
type ReminderService struct {
	mu        sync.RWMutex
	reminders storage.Snapshot
	storage   storage.Snapshotter
	timezone  *time.Location
	now       func() time.Time
}

func NewReminderService(s storage.Snapshotter, tz *time.Location) *ReminderService {
	if tz == nil {
		tz = time.UTC
	}
	return &ReminderService{
		reminders: make(storage.Snapshot),
		storage:   s,
		timezone:  tz,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for CreatedAt and id generation.
func (s *ReminderService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load replaces the in-memory state with the durable snapshot.
func (s *ReminderService) Load() error {
	snap, err := s.storage.Load()
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}

	s.mu.Lock()
	s.reminders = snap
	s.mu.Unlock()
	return nil
}

func (s *ReminderService) Add(owner, title string, eventTime time.Time, leadMinutes int) (string, error) {
	// owner хранится как есть, trim только для проверки
	if strings.TrimSpace(owner) == "" {
		return "", &ValidationError{Field: "owner", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(title) == "" {
		return "", &ValidationError{Field: "title", Reason: "reminder title cannot be empty"}
	}
	if leadMinutes < 0 {
		return "", &ValidationError{Field: "lead minutes", Reason: fmt.Sprintf("must not be negative, got %d", leadMinutes)}
	}
	if eventTime.IsZero() {
		return "", &ValidationError{Field: "event time", Reason: "is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now().UTC()
	r := domain.Reminder{
		ID:          s.nextID(owner, created),
		Owner:       owner,
		Title:       title,
		EventTime:   eventTime.UTC(),
		LeadMinutes: leadMinutes,
		CreatedAt:   created,
	}

	staged := s.reminders.Clone()
	staged[r.ID] = r
	if err := s.storage.Save(staged); err != nil {
		return "", &StorageError{Op: "add", Err: err}
	}
	s.reminders = staged
	return r.ID, nil
}

// nextID must be called with mu held.
func (s *ReminderService) nextID(owner string, created time.Time) string {
	base := fmt.Sprintf("%s_%d", owner, created.Unix())
	id := base
	for n := 1; ; n++ {
		if _, taken := s.reminders[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// MarkSent latches the sent flag. A second call returns ErrAlreadySent and
// changes nothing.
func (s *ReminderService) MarkSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	if r.Sent {
		return ErrAlreadySent
	}

	r.Sent = true
	staged := s.reminders.Clone()
	staged[id] = r
	if err := s.storage.Save(staged); err != nil {
		return &StorageError{Op: "mark sent", Err: err}
	}
	s.reminders = staged
	return nil
}

func (s *ReminderService) Get(id string) (domain.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reminders[id]
	if !ok {
		return domain.Reminder{}, ErrNotFound
	}
	return r, nil
}

// ListActive returns the owner's unsent reminders in due order.
func (s *ReminderService) ListActive(owner string) []domain.Reminder {
	return s.filter(func(r domain.Reminder) bool {
		return r.Owner == owner && !r.Sent
	})
}

// History returns every reminder of the owner, sent ones included.
func (s *ReminderService) History(owner string) []domain.Reminder {
	return s.filter(func(r domain.Reminder) bool {
		return r.Owner == owner
	})
}

// DueSince returns all unsent reminders whose due time is at or before now.
// It never marks anything.
func (s *ReminderService) DueSince(now time.Time) []domain.Reminder {
	return s.filter(func(r domain.Reminder) bool {
		return r.IsDue(now)
	})
}

// Upcoming returns the owner's unsent reminders with events in [from, from+window].
func (s *ReminderService) Upcoming(owner string, from time.Time, window time.Duration) []domain.Reminder {
	to := from.Add(window)
	return s.filter(func(r domain.Reminder) bool {
		return r.Owner == owner && !r.Sent &&
			!r.EventTime.Before(from) && !r.EventTime.After(to)
	})
}

// Owners lists every owner with at least one unsent reminder.
func (s *ReminderService) Owners() []string {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for _, r := range s.reminders {
		if !r.Sent {
			seen[r.Owner] = struct{}{}
		}
	}
	s.mu.RUnlock()

	owners := make([]string, 0, len(seen))
	for o := range seen {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

func (s *ReminderService) filter(keep func(domain.Reminder) bool) []domain.Reminder {
	s.mu.RLock()
	out := make([]domain.Reminder, 0)
	for _, r := range s.reminders {
		if keep(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Timezone is the single fixed clock zone used for rendering and parsing.
func (s *ReminderService) Timezone() *time.Location {
	return s.timezone
}

// RenderNotification builds the text delivered when a reminder fires.
func (s *ReminderService) RenderNotification(r domain.Reminder) string {
	return fmt.Sprintf("🔔 Reminder!\n\nEvent: %s\nTime: %s",
		EscapeHTML(r.Title), r.EventTime.In(s.timezone).Format("2006-01-02 15:04"))
}

func (s *ReminderService) FormatReminderList(reminders []domain.Reminder) string {
	if len(reminders) == 0 {
		return "No reminders"
	}

	var sb strings.Builder
	for _, r := range reminders {
		sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n    🕒 %s (notify %d min before, at %s)\n",
			r.StatusEmoji(), EscapeHTML(r.Title),
			r.EventTime.In(s.timezone).Format("2006-01-02 15:04"),
			r.LeadMinutes,
			r.DueAt().In(s.timezone).Format("15:04")))
	}
	return sb.String()
}

// EscapeHTML makes user text safe for Telegram's HTML parse mode.
func EscapeHTML(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
