package bot

import (
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedUser(msg.From.ID) {
		log.Printf("Rejected message from user %d", msg.From.ID)
		b.SendMessage(chatID, "⛔ Access denied")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	switch text {
	case btnAdd:
		b.cmdAdd(chatID, "")
		return
	case btnList:
		b.cmdList(chatID)
		return
	case btnHelp:
		b.cmdHelp(chatID)
		return
	}

	// Ответ на "Add Reminder"
	if b.isPending(chatID) {
		b.addFromText(chatID, text)
		return
	}

	b.SendMessageWithKeyboard(chatID, "Choose an option:", mainKeyboard())
}

func (b *Bot) setPending(chatID int64, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.pending[chatID] = true
	} else {
		delete(b.pending, chatID)
	}
}

func (b *Bot) isPending(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[chatID]
}
