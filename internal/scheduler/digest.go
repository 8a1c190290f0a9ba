package scheduler

import (
	"fmt"
	"time"
)

const digestWindow = 24 * time.Hour

// dailyDigest sends every owner a summary of events in the next 24 hours.
// It never marks anything sent.
func (s *Scheduler) dailyDigest() {
	if s.sender == nil {
		return
	}

	now := s.now()
	for _, owner := range s.reminderService.Owners() {
		upcoming := s.reminderService.Upcoming(owner, now, digestWindow)
		if len(upcoming) == 0 {
			continue
		}

		text := fmt.Sprintf("☀️ <b>Good morning!</b>\n\n<b>Coming up in the next 24h (%d):</b>\n\n", len(upcoming))
		text += s.reminderService.FormatReminderList(upcoming)

		if err := s.sender.Send(owner, text); err != nil {
			s.log.Printf("Error sending digest to %s: %v", owner, err)
		}
	}
}
