package bot

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tazhate/remindbot/internal/domain"
	"github.com/tazhate/remindbot/internal/service"
)

// API Response types
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ReminderResponse struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Title       string `json:"title"`
	EventTime   string `json:"event_time"`
	LeadMinutes int    `json:"lead_minutes"`
	DueAt       string `json:"due_at"`
	CreatedAt   string `json:"created_at"`
	Sent        bool   `json:"sent"`
}

type CreateReminderRequest struct {
	Owner       string `json:"owner"`
	Title       string `json:"title"`
	EventTime   string `json:"event_time"` // RFC3339
	LeadMinutes *int   `json:"lead_minutes"`
}

// SetupAPI registers API routes with Basic Auth
func (b *Bot) SetupAPI(r *mux.Router) {
	if !b.cfg.APIEnabled() {
		return // API disabled if no credentials
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(b.basicAuth)

	api.HandleFunc("/reminders", b.apiListReminders).Methods(http.MethodGet)
	api.HandleFunc("/reminders", b.apiCreateReminder).Methods(http.MethodPost)
	api.HandleFunc("/reminders/history", b.apiReminderHistory).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{id}", b.apiGetReminder).Methods(http.MethodGet)
	api.HandleFunc("/calendar.ics", b.apiCalendar).Methods(http.MethodGet)
}

// basicAuth middleware
func (b *Bot) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != b.cfg.API.Username || password != b.cfg.API.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="RemindBot API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bot) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (b *Bot) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}

func (b *Bot) ownerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		b.jsonError(w, "owner is required", http.StatusBadRequest)
		return "", false
	}
	return owner, true
}

// GET /api/reminders?owner= - active reminders
func (b *Bot) apiListReminders(w http.ResponseWriter, r *http.Request) {
	owner, ok := b.ownerParam(w, r)
	if !ok {
		return
	}
	b.jsonResponse(w, http.StatusOK, b.remindersToResponse(b.reminderService.ListActive(owner)))
}

// GET /api/reminders/history?owner= - all reminders of owner
func (b *Bot) apiReminderHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := b.ownerParam(w, r)
	if !ok {
		return
	}
	b.jsonResponse(w, http.StatusOK, b.remindersToResponse(b.reminderService.History(owner)))
}

// POST /api/reminders - create reminder
func (b *Bot) apiCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req CreateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		b.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	eventTime, err := time.Parse(time.RFC3339, req.EventTime)
	if err != nil {
		b.jsonError(w, "Invalid event_time (use RFC3339, e.g. 2024-12-25T14:30:00+03:00)", http.StatusBadRequest)
		return
	}

	lead := b.cfg.Scheduler.DefaultLeadMinutes
	if req.LeadMinutes != nil {
		lead = *req.LeadMinutes
	}

	id, err := b.reminderService.Add(req.Owner, req.Title, eventTime, lead)
	switch {
	case service.IsValidation(err):
		b.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rem, err := b.reminderService.Get(id)
	if err != nil {
		b.jsonResponse(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	b.jsonResponse(w, http.StatusCreated, b.reminderToResponse(rem))
}

// GET /api/reminders/{id}
func (b *Bot) apiGetReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := b.reminderService.Get(mux.Vars(r)["id"])
	if errors.Is(err, service.ErrNotFound) {
		b.jsonError(w, "Reminder not found", http.StatusNotFound)
		return
	}
	b.jsonResponse(w, http.StatusOK, b.reminderToResponse(rem))
}

// GET /api/calendar.ics?owner= - iCalendar export of active reminders
func (b *Bot) apiCalendar(w http.ResponseWriter, r *http.Request) {
	owner, ok := b.ownerParam(w, r)
	if !ok {
		return
	}
	if len(b.reminderService.ListActive(owner)) == 0 {
		b.jsonError(w, "No active reminders", http.StatusNotFound)
		return
	}

	data, err := b.calendarService.ExportICS(owner)
	if err != nil {
		b.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reminders.ics"`)
	w.Write(data)
}

func (b *Bot) reminderToResponse(r domain.Reminder) ReminderResponse {
	tz := b.reminderService.Timezone()
	return ReminderResponse{
		ID:          r.ID,
		Owner:       r.Owner,
		Title:       r.Title,
		EventTime:   r.EventTime.In(tz).Format(time.RFC3339),
		LeadMinutes: r.LeadMinutes,
		DueAt:       r.DueAt().In(tz).Format(time.RFC3339),
		CreatedAt:   r.CreatedAt.In(tz).Format(time.RFC3339),
		Sent:        r.Sent,
	}
}

func (b *Bot) remindersToResponse(reminders []domain.Reminder) []ReminderResponse {
	result := make([]ReminderResponse, 0, len(reminders))
	for _, r := range reminders {
		result = append(result, b.reminderToResponse(r))
	}
	return result
}
