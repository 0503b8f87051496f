package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/missionboard/internal/app"
	"github.com/shrimpsizemoose/missionboard/internal/notify"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	var once = flag.Bool("once", false, "Send reminders once and exit")
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to start service: %v", err)
	}
	defer service.Close()

	cfg := service.Config.Reminder
	sender, err := notify.NewTelegramSender(cfg.BotToken)
	if err != nil {
		logger.Error.Fatalf("Failed to create telegram sender: %v", err)
	}

	reminder, err := notify.NewReminder(service, sender, cfg.Chats, time.Duration(cfg.WindowHours)*time.Hour)
	if err != nil {
		logger.Error.Fatalf("Failed to create reminder: %v", err)
	}

	run := func() {
		if err := service.Reload(); err != nil {
			logger.Error.Printf("Failed to reload snapshot: %v", err)
			return
		}
		if _, err := reminder.Run(); err != nil {
			logger.Error.Printf("Reminder run finished with errors: %v", err)
		}
	}

	if *once {
		run()
		return
	}

	if cfg.Schedule == "" {
		logger.Error.Fatalf("Reminder schedule is not specified in config")
	}
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron(cfg.Schedule).Do(run); err != nil {
		logger.Error.Fatalf("Failed to schedule reminders: %v", err)
	}
	scheduler.StartAsync()
	logger.Info.Printf("Reminders scheduled: %s, window %dh, %d chats", cfg.Schedule, cfg.WindowHours, len(cfg.Chats))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	scheduler.Stop()
	logger.Info.Println("Reminder stopped")
}
