package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/tazhate/remindbot/config"
	"github.com/tazhate/remindbot/internal/service"
)

// messenger is the part of *tgbotapi.BotAPI the handlers use.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api             *tgbotapi.BotAPI
	tg              messenger
	cfg             *config.Config
	reminderService *service.ReminderService
	calendarService *service.CalendarService
	server          *http.Server

	mu      sync.Mutex
	pending map[int64]bool // чаты, от которых ждём строку с напоминанием

	quit     chan struct{} // закрыт, когда Start перестал читать апдейты
	quitOnce sync.Once
}

func New(cfg *config.Config, reminderSvc *service.ReminderService, calendarSvc *service.CalendarService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	bot := newBot(api, cfg, reminderSvc, calendarSvc)
	bot.api = api

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func newBot(tg messenger, cfg *config.Config, reminderSvc *service.ReminderService, calendarSvc *service.CalendarService) *Bot {
	return &Bot{
		tg:              tg,
		cfg:             cfg,
		reminderService: reminderSvc,
		calendarService: calendarSvc,
		pending:         make(map[int64]bool),
		quit:            make(chan struct{}),
	}
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "🤖 Main menu"},
		{Command: "add", Description: "📅 Add a reminder"},
		{Command: "list", Description: "📋 My reminders"},
		{Command: "history", Description: "🗂 All reminders, sent included"},
		{Command: "ics", Description: "📆 Export to calendar"},
		{Command: "help", Description: "ℹ️ Help"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.tg.Request(cfg); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

// Start serves HTTP (health, REST API, webhook) and dispatches updates until
// ctx is cancelled. Without a webhook URL updates come from long polling.
func (b *Bot) Start(ctx context.Context) error {
	router := b.Router()

	var updates tgbotapi.UpdatesChannel
	if b.cfg.Telegram.WebhookURL != "" {
		ch := make(chan tgbotapi.Update, 100)
		router.HandleFunc("/bot", b.webhookHandler(ch)).Methods(http.MethodPost)
		if err := b.setupWebhook(); err != nil {
			return err
		}
		updates = ch
	} else {
		if _, err := b.tg.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.Printf("Failed to delete webhook: %v", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
		log.Println("Using long polling")
	}

	b.server = &http.Server{
		Addr:    ":" + b.cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on :%s", b.cfg.Server.Port)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	defer b.quitOnce.Do(func() { close(b.quit) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) setupWebhook() error {
	webhookURL := b.cfg.Telegram.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	if _, err := b.tg.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		log.Printf("Webhook last error: %s", info.LastErrorMessage)
	}

	log.Printf("Webhook set to: %s", webhookURL)
	return nil
}

func (b *Bot) webhookHandler(updates chan<- tgbotapi.Update) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case updates <- *update:
		case <-b.quit:
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		case <-r.Context().Done():
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.api != nil && b.cfg.Telegram.WebhookURL == "" {
		b.api.StopReceivingUpdates()
	}
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

// Router exposes the health check and, when credentials are configured, the REST API.
func (b *Bot) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	b.SetupAPI(r)
	return r
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.tg.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.tg.Send(msg)
	return err
}

// Send delivers a notification; the recipient is a chat id in decimal form.
func (b *Bot) Send(recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}
	return b.SendMessage(chatID, text)
}

func (b *Bot) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := b.tg.Send(doc)
	return err
}
