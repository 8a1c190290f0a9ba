package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const addUsage = "Send: <code>YYYY-MM-DD HH:MM [minutes] title</code>\nExample: <code>2024-12-25 14:30 30 Team meeting</code>"

type addRequest struct {
	Title       string
	EventTime   time.Time
	LeadMinutes int
}

// parseAddArgs reads "YYYY-MM-DD HH:MM [minutes] title". The lead time is
// optional and falls back to defaultLead. Title and lead are checked by the
// store, not here.
func parseAddArgs(args string, tz *time.Location, defaultLead int) (addRequest, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return addRequest{}, fmt.Errorf("not enough arguments")
	}

	eventTime, err := time.ParseInLocation("2006-01-02 15:04", fields[0]+" "+fields[1], tz)
	if err != nil {
		return addRequest{}, fmt.Errorf("invalid date or time %q", fields[0]+" "+fields[1])
	}

	req := addRequest{EventTime: eventTime, LeadMinutes: defaultLead}
	rest := fields[2:]
	if lead, err := strconv.Atoi(rest[0]); err == nil {
		req.LeadMinutes = lead
		rest = rest[1:]
	}
	req.Title = strings.Join(rest, " ")
	return req, nil
}
