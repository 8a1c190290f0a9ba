package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/tazhate/remindbot/internal/storage"
)

// flakyStorage fails Save while failSave is set.
type flakyStorage struct {
	storage.Snapshotter
	mu       sync.Mutex
	failSave bool
	failLoad bool
	saves    int
}

func (f *flakyStorage) Save(snap storage.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("disk full")
	}
	f.saves++
	return f.Snapshotter.Save(snap)
}

func (f *flakyStorage) Load() (storage.Snapshot, error) {
	if f.failLoad {
		return nil, errors.New("permission denied")
	}
	return f.Snapshotter.Load()
}

func (f *flakyStorage) setFailSave(v bool) {
	f.mu.Lock()
	f.failSave = v
	f.mu.Unlock()
}

func newTestStorage() *flakyStorage {
	return &flakyStorage{Snapshotter: storage.NewJSONFileFs(afero.NewMemMapFs(), "/data/reminders.json")}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func newTestService(t *testing.T, st storage.Snapshotter) *ReminderService {
	t.Helper()
	svc := NewReminderService(st, time.UTC)
	svc.SetClock(func() time.Time { return mustTime(t, "2024-12-01T09:00") })
	if err := svc.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return svc
}

func TestAddThenListActive(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	event := mustTime(t, "2024-12-25T14:30")

	id, err := svc.Add("u1", "Meeting", event, 30)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	list := svc.ListActive("u1")
	if len(list) != 1 {
		t.Fatalf("ListActive: got %d, want 1", len(list))
	}
	r := list[0]
	if r.ID != id || r.Owner != "u1" || r.Title != "Meeting" || !r.EventTime.Equal(event) || r.LeadMinutes != 30 || r.Sent {
		t.Errorf("unexpected reminder: %+v", r)
	}

	if other := svc.ListActive("u2"); len(other) != 0 {
		t.Errorf("ListActive(u2): got %d, want 0", len(other))
	}
}

func TestAddKeepsOwnerAsGiven(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	event := mustTime(t, "2024-12-25T14:30")

	id, err := svc.Add(" u1", "Meeting", event, 30)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	list := svc.ListActive(" u1")
	if len(list) != 1 || list[0].ID != id || list[0].Owner != " u1" {
		t.Fatalf("ListActive(\" u1\"): %+v", list)
	}
	if other := svc.ListActive("u1"); len(other) != 0 {
		t.Errorf("ListActive(u1): got %d, want 0", len(other))
	}
}

func TestAddValidation(t *testing.T) {
	event := time.Date(2024, 12, 25, 14, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		owner string
		title string
		event time.Time
		lead  int
		field string
	}{
		{"empty title", "u1", "", event, 30, "title"},
		{"blank title", "u1", "   ", event, 30, "title"},
		{"negative lead", "u1", "Meeting", event, -1, "lead minutes"},
		{"empty owner", "", "Meeting", event, 30, "owner"},
		{"blank owner", "  ", "Meeting", event, 30, "owner"},
		{"zero event", "u1", "Meeting", time.Time{}, 30, "event time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStorage()
			svc := newTestService(t, st)
			_, err := svc.Add(tt.owner, tt.title, tt.event, tt.lead)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field: got %q, want %q", ve.Field, tt.field)
			}
			if st.saves != 0 {
				t.Errorf("validation failure persisted %d snapshots", st.saves)
			}
			if len(svc.History(tt.owner)) != 0 {
				t.Error("validation failure changed state")
			}
		})
	}
}

func TestAddZeroLeadAllowed(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	if _, err := svc.Add("u1", "Now", mustTime(t, "2024-12-25T14:30"), 0); err != nil {
		t.Fatalf("Add with zero lead failed: %v", err)
	}
}

func TestAddStorageFailureLeavesNoTrace(t *testing.T) {
	st := newTestStorage()
	svc := newTestService(t, st)
	st.setFailSave(true)

	_, err := svc.Add("u1", "Meeting", mustTime(t, "2024-12-25T14:30"), 30)
	if !IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if n := len(svc.History("u1")); n != 0 {
		t.Errorf("failed add is visible: %d reminders", n)
	}

	st.setFailSave(false)
	if _, err := svc.Add("u1", "Meeting", mustTime(t, "2024-12-25T14:30"), 30); err != nil {
		t.Fatalf("Add after recovery failed: %v", err)
	}
}

func TestIDsUniqueWithinSameSecond(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	event := mustTime(t, "2024-12-25T14:30")

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		id, err := svc.Add("u1", fmt.Sprintf("r%d", i), event, 30)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if _, ok := seen["u1_1733043600"]; !ok {
		t.Errorf("expected base id u1_1733043600 among %v", seen)
	}
	if _, ok := seen["u1_1733043600_1"]; !ok {
		t.Errorf("expected tie-break id u1_1733043600_1 among %v", seen)
	}
}

func TestDueSinceThreshold(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	id, err := svc.Add("u1", "Meeting", mustTime(t, "2024-12-25T14:30"), 30)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if due := svc.DueSince(mustTime(t, "2024-12-25T14:00")); len(due) != 1 || due[0].ID != id {
		t.Errorf("DueSince(14:00): got %+v, want [%s]", due, id)
	}
	if due := svc.DueSince(mustTime(t, "2024-12-25T13:59")); len(due) != 0 {
		t.Errorf("DueSince(13:59): got %d, want 0", len(due))
	}

	if err := svc.MarkSent(id); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if due := svc.DueSince(mustTime(t, "2024-12-26T00:00")); len(due) != 0 {
		t.Errorf("sent reminder still due: %+v", due)
	}
	if active := svc.ListActive("u1"); len(active) != 0 {
		t.Errorf("sent reminder still active: %+v", active)
	}
	if hist := svc.History("u1"); len(hist) != 1 || !hist[0].Sent {
		t.Errorf("History: got %+v, want one sent reminder", hist)
	}
}

func TestDueSinceOrdering(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	// due 14:00, 13:00, 14:00 (later created)
	a, _ := svc.Add("u1", "A", mustTime(t, "2024-12-25T14:30"), 30)
	b, _ := svc.Add("u2", "B", mustTime(t, "2024-12-25T13:10"), 10)
	svc.SetClock(func() time.Time { return mustTime(t, "2024-12-01T10:00") })
	c, _ := svc.Add("u1", "C", mustTime(t, "2024-12-25T14:00"), 0)

	due := svc.DueSince(mustTime(t, "2024-12-25T15:00"))
	var got []string
	for _, r := range due {
		got = append(got, r.ID)
	}
	want := []string{b, a, c}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order: got %v, want %v", got, want)
	}
}

func TestMarkSentIdempotent(t *testing.T) {
	st := newTestStorage()
	svc := newTestService(t, st)
	id, _ := svc.Add("u1", "Meeting", mustTime(t, "2024-12-25T14:30"), 30)

	if err := svc.MarkSent(id); err != nil {
		t.Fatalf("first MarkSent failed: %v", err)
	}
	saves := st.saves
	if err := svc.MarkSent(id); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("second MarkSent: got %v, want ErrAlreadySent", err)
	}
	if st.saves != saves {
		t.Error("second MarkSent persisted a snapshot")
	}
	r, err := svc.Get(id)
	if err != nil || !r.Sent {
		t.Errorf("Get after MarkSent: %+v, %v", r, err)
	}

	if err := svc.MarkSent("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkSent unknown: got %v, want ErrNotFound", err)
	}
}

func TestMarkSentStorageFailureRollsBack(t *testing.T) {
	st := newTestStorage()
	svc := newTestService(t, st)
	id, _ := svc.Add("u1", "Meeting", mustTime(t, "2024-12-25T14:30"), 30)

	st.setFailSave(true)
	if err := svc.MarkSent(id); !IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if r, _ := svc.Get(id); r.Sent {
		t.Error("in-memory state diverged after failed persist")
	}

	st.setFailSave(false)
	if err := svc.MarkSent(id); err != nil {
		t.Fatalf("MarkSent after recovery failed: %v", err)
	}
}

func TestPersistReloadRoundTrip(t *testing.T) {
	st := newTestStorage()
	svc := newTestService(t, st)
	id1, _ := svc.Add("u1", "Meeting", mustTime(t, "2024-12-25T14:30"), 30)
	_, _ = svc.Add("u2", "Dentist", mustTime(t, "2024-12-27T08:00"), 120)
	_ = svc.MarkSent(id1)

	reloaded := newTestService(t, st)
	for _, owner := range []string{"u1", "u2"} {
		before, after := svc.History(owner), reloaded.History(owner)
		if len(before) != len(after) {
			t.Fatalf("owner %s: got %d reminders, want %d", owner, len(after), len(before))
		}
		for i := range before {
			b, a := before[i], after[i]
			if a.ID != b.ID || a.Owner != b.Owner || a.Title != b.Title || a.LeadMinutes != b.LeadMinutes ||
				a.Sent != b.Sent || !a.EventTime.Equal(b.EventTime) || !a.CreatedAt.Equal(b.CreatedAt) {
				t.Errorf("round trip mismatch: got %+v, want %+v", a, b)
			}
		}
	}
}

func TestLoadMissingSnapshotIsEmpty(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	if owners := svc.Owners(); len(owners) != 0 {
		t.Errorf("Owners: got %v, want none", owners)
	}
}

func TestLoadFailureIsStorageError(t *testing.T) {
	st := newTestStorage()
	st.failLoad = true
	svc := NewReminderService(st, time.UTC)
	if err := svc.Load(); !IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestConcurrentAdds(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	event := mustTime(t, "2024-12-25T14:30")

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := svc.Add("u1", fmt.Sprintf("r%d", i), event, 30)
			if err != nil {
				t.Errorf("Add failed: %v", err)
				return
			}
			ids <- id
		}(i)
	}

	// сканер читает параллельно
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			svc.DueSince(mustTime(t, "2024-12-25T14:00"))
		}
	}()

	wg.Wait()
	<-done
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("distinct ids: got %d, want %d", len(seen), n)
	}
	if got := len(svc.ListActive("u1")); got != n {
		t.Errorf("ListActive: got %d, want %d", got, n)
	}
}

func TestUpcomingAndOwners(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	_, _ = svc.Add("u1", "Soon", mustTime(t, "2024-12-25T10:00"), 30)
	_, _ = svc.Add("u1", "Later", mustTime(t, "2024-12-27T10:00"), 30)
	sent, _ := svc.Add("u2", "Done", mustTime(t, "2024-12-25T11:00"), 30)
	_ = svc.MarkSent(sent)

	up := svc.Upcoming("u1", mustTime(t, "2024-12-25T08:00"), 24*time.Hour)
	if len(up) != 1 || up[0].Title != "Soon" {
		t.Errorf("Upcoming: got %+v", up)
	}
	if owners := svc.Owners(); len(owners) != 1 || owners[0] != "u1" {
		t.Errorf("Owners: got %v, want [u1]", owners)
	}
}

func TestRenderNotification(t *testing.T) {
	tz := time.FixedZone("MSK", 3*60*60)
	svc := NewReminderService(newTestStorage(), tz)
	if err := svc.Load(); err != nil {
		t.Fatal(err)
	}
	id, err := svc.Add("u1", "Meeting <team>", mustTime(t, "2024-12-25T11:30"), 30)
	if err != nil {
		t.Fatal(err)
	}
	rem, _ := svc.Get(id)

	want := "🔔 Reminder!\n\nEvent: Meeting &lt;team&gt;\nTime: 2024-12-25 14:30"
	if got := svc.RenderNotification(rem); got != want {
		t.Errorf("RenderNotification:\ngot  %q\nwant %q", got, want)
	}
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"<b>bold</b>", "&lt;b&gt;bold&lt;/b&gt;"},
		{"Tom & Jerry", "Tom &amp; Jerry"},
		{"&lt;", "&amp;lt;"},
	}
	for _, tt := range tests {
		if got := EscapeHTML(tt.in); got != tt.want {
			t.Errorf("EscapeHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
