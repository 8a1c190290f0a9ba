package service

import (
	"strings"
	"testing"
	"time"
)

func TestExportICS(t *testing.T) {
	svc := newTestService(t, newTestStorage())
	id, err := svc.Add("u1", "Meeting", mustTime(t, "2024-12-25T14:30"), 30)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	sent, _ := svc.Add("u1", "Old", mustTime(t, "2024-12-20T10:00"), 0)
	_ = svc.MarkSent(sent)

	cal := NewCalendarService(svc)
	cal.now = func() time.Time { return mustTime(t, "2024-12-01T09:00") }

	data, err := cal.ExportICS("u1")
	if err != nil {
		t.Fatalf("ExportICS failed: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"PRODID:" + productID,
		"BEGIN:VEVENT",
		"UID:" + id + "@remindbot",
		"SUMMARY:Meeting",
		"DTSTART:20241225T143000Z",
		"BEGIN:VALARM",
		"TRIGGER:-PT30M",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "SUMMARY:Old") {
		t.Error("sent reminder exported")
	}
}
