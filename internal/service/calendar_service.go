package service

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tazhate/remindbot/internal/domain"
)

const productID = "-//RemindBot//Reminders//EN"

// CalendarService exports reminders as iCalendar so they can be imported
// into a phone calendar. Each reminder becomes a VEVENT with a VALARM
// firing LeadMinutes before the event.
type CalendarService struct {
	reminders *ReminderService
	now       func() time.Time
}

func NewCalendarService(reminders *ReminderService) *CalendarService {
	return &CalendarService{reminders: reminders, now: time.Now}
}

// ExportActive writes the owner's active reminders as an .ics document.
func (s *CalendarService) ExportActive(w io.Writer, owner string) error {
	return s.encode(w, s.reminders.ListActive(owner))
}

// ExportICS returns the owner's active reminders as .ics bytes.
func (s *CalendarService) ExportICS(owner string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.ExportActive(&buf, owner); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *CalendarService) encode(w io.Writer, reminders []domain.Reminder) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	stamp := s.now().UTC()
	for _, r := range reminders {
		cal.Children = append(cal.Children, reminderToEvent(r, stamp).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func reminderToEvent(r domain.Reminder, stamp time.Time) *ical.Event {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, r.ID+"@remindbot")
	vevent.Props.SetText(ical.PropSummary, r.Title)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	vevent.Props.SetDateTime(ical.PropDateTimeStart, r.EventTime.UTC())

	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, r.Title)
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dM", r.LeadMinutes)
	alarm.Props.Set(trigger)
	vevent.Children = append(vevent.Children, alarm)

	return vevent
}
