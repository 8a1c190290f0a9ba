package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhate/remindbot/config"
	"github.com/tazhate/remindbot/internal/bot"
	"github.com/tazhate/remindbot/internal/scheduler"
	"github.com/tazhate/remindbot/internal/service"
	"github.com/tazhate/remindbot/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "", "path to YAML config (default $REMINDBOT_CONFIG)")
	flag.Parse()

	// Загрузка конфига
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Инициализация storage
	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	// Инициализация сервисов
	reminderSvc := service.NewReminderService(store, cfg.Timezone)
	if err := reminderSvc.Load(); err != nil {
		log.Fatalf("Failed to load reminders: %v", err)
	}
	calendarSvc := service.NewCalendarService(reminderSvc)

	// Инициализация бота
	tgBot, err := bot.New(cfg, reminderSvc, calendarSvc)
	if err != nil {
		log.Fatalf("Failed to init bot: %v", err)
	}

	// Инициализация scheduler
	sched := scheduler.New(cfg, reminderSvc)
	sched.SetSender(tgBot)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Printf("Bot error: %v", err)
		}
	}()

	log.Printf("RemindBot started (storage=%s, timezone=%s, scan every %s)",
		cfg.Storage.Backend, cfg.Timezone, cfg.Scheduler.ScanInterval)

	// Ожидание сигнала завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Текущий цикл рассылки доработает до конца
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping bot: %v", err)
	}

	log.Println("RemindBot stopped")
}
