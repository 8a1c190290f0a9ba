package bot

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/remindbot/internal/service"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start":
		b.cmdStart(chatID)
	case "help":
		b.cmdHelp(chatID)
	case "add":
		b.cmdAdd(chatID, args)
	case "list":
		b.cmdList(chatID)
	case "history":
		b.cmdHistory(chatID)
	case "ics":
		b.cmdICS(chatID)
	case "cancel":
		b.setPending(chatID, false)
		b.SendMessage(chatID, "OK, cancelled.")
	default:
		b.SendMessage(chatID, "Unknown command. /help for the list of commands")
	}
}

func (b *Bot) cmdStart(chatID int64) {
	b.SendMessageWithKeyboard(chatID,
		"🤖 Welcome to Reminder Bot! I'll help you set event reminders.\nChoose an option:",
		mainKeyboard())
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `📝 <b>How to use:</b>
• Click "📅 Add Reminder" to set a new reminder
• "📋 My Reminders" to view your reminders
• I'll notify you automatically!

<b>Commands:</b>
/add YYYY-MM-DD HH:MM [minutes] title - add a reminder
/list - upcoming reminders
/history - all reminders, sent included
/ics - export reminders to your calendar
/cancel - cancel adding

Lead time defaults to ` + strconv.Itoa(b.cfg.Scheduler.DefaultLeadMinutes) + ` minutes. Times are in ` + b.reminderService.Timezone().String() + `.`
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdAdd(chatID int64, args string) {
	if args == "" {
		b.setPending(chatID, true)
		b.SendMessage(chatID, "📅 New reminder\n\n"+addUsage)
		return
	}
	b.addFromText(chatID, args)
}

// addFromText parses a reminder line and stores it. Store validation errors
// are shown to the user verbatim.
func (b *Bot) addFromText(chatID int64, text string) {
	req, err := parseAddArgs(text, b.reminderService.Timezone(), b.cfg.Scheduler.DefaultLeadMinutes)
	if err != nil {
		b.SendMessage(chatID, fmt.Sprintf("❌ %s\n\n%s", service.EscapeHTML(err.Error()), addUsage))
		return
	}

	owner := strconv.FormatInt(chatID, 10)
	id, err := b.reminderService.Add(owner, req.Title, req.EventTime, req.LeadMinutes)
	if err != nil {
		log.Printf("Error adding reminder for %s: %v", owner, err)
		b.SendMessage(chatID, "❌ "+service.EscapeHTML(err.Error()))
		return
	}
	b.setPending(chatID, false)

	r, err := b.reminderService.Get(id)
	if err != nil {
		b.SendMessage(chatID, "✅ Reminder added")
		return
	}

	tz := b.reminderService.Timezone()
	b.SendMessage(chatID, fmt.Sprintf("✅ Reminder set!\n\n<b>%s</b>\nEvent: %s\nI'll notify you at %s",
		service.EscapeHTML(r.Title),
		r.EventTime.In(tz).Format("2006-01-02 15:04"),
		r.DueAt().In(tz).Format("2006-01-02 15:04")))
}

func (b *Bot) cmdList(chatID int64) {
	reminders := b.reminderService.ListActive(strconv.FormatInt(chatID, 10))
	if len(reminders) == 0 {
		b.SendMessage(chatID, "📋 You have no upcoming reminders.\n\n/add to create one")
		return
	}

	text := fmt.Sprintf("📋 <b>Your reminders (%d):</b>\n\n", len(reminders))
	text += b.reminderService.FormatReminderList(reminders)
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdHistory(chatID int64) {
	reminders := b.reminderService.History(strconv.FormatInt(chatID, 10))
	if len(reminders) == 0 {
		b.SendMessage(chatID, "🗂 No reminders yet.")
		return
	}

	text := fmt.Sprintf("🗂 <b>All reminders (%d):</b>\n\n", len(reminders))
	text += b.reminderService.FormatReminderList(reminders)
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdICS(chatID int64) {
	owner := strconv.FormatInt(chatID, 10)
	if len(b.reminderService.ListActive(owner)) == 0 {
		b.SendMessage(chatID, "📆 Nothing to export.")
		return
	}

	data, err := b.calendarService.ExportICS(owner)
	if err != nil {
		log.Printf("Error exporting calendar for %s: %v", owner, err)
		b.SendMessage(chatID, "❌ Export failed: "+err.Error())
		return
	}

	if err := b.SendDocument(chatID, "reminders.ics", data, "📆 Open to import into your calendar"); err != nil {
		log.Printf("Error sending calendar to %s: %v", owner, err)
	}
}
