// cmd/main.go is the application entry point.
// It wires together all layers, starts the reminder scheduler, and serves
// the webhook endpoint.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/eventbot/internal/bot"
	"github.com/avolkov/eventbot/internal/config"
	"github.com/avolkov/eventbot/internal/database"
	"github.com/avolkov/eventbot/internal/notify"
	"github.com/avolkov/eventbot/internal/repository"
	"github.com/avolkov/eventbot/internal/scheduler"
	"github.com/avolkov/eventbot/internal/service"
	"github.com/avolkov/eventbot/internal/transport"
	"github.com/avolkov/eventbot/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if len(cfg.AdminIDs) == 0 {
		log.Println("warning: ADMIN_IDS is empty, no admin operations will be possible")
	}

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("connected to postgres")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	users := repository.NewUserRepository(pool)
	events := repository.NewEventRepository(pool)
	regs := repository.NewRegistrationRepository(pool)
	runs := repository.NewReminderRepository(pool)

	engine := service.NewEngine(users, events, regs, config.NewAdminSet(cfg.AdminIDs))
	flows := workflow.NewController()
	router := bot.NewRouter(engine, flows)
	handler := transport.NewHandler(router)

	gateway, closeGateway := buildGateway(cfg)
	defer closeGateway()

	// ── 3. Start the daily reminder scheduler ────────────────────────────
	sched := scheduler.New(events, regs, runs, gateway, cfg.ReminderHour, cfg.SendTimeout)
	go sched.Run(ctx)

	// ── 4. Serve the webhook with graceful shutdown ──────────────────────
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("stopped")
}

// buildGateway selects the notification gateway from configuration.
func buildGateway(cfg config.Config) (notify.Gateway, func()) {
	switch cfg.NotifyMode {
	case config.NotifyTelegram:
		return notify.NewTelegramGateway(cfg.TelegramToken), func() {}
	case config.NotifyKafka:
		gw := notify.NewKafkaGateway(cfg.KafkaBroker, cfg.KafkaTopic)
		return gw, func() {
			if err := gw.Close(); err != nil {
				log.Printf("close kafka gateway: %v", err)
			}
		}
	default:
		return notify.LogGateway{}, func() {}
	}
}
