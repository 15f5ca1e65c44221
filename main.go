package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnldd/screener/service"
	"github.com/rs/zerolog"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt, syscall.SIGTERM}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	screenerCfg := service.ScreenerConfig{
		AlphaVantageAPIKey:  cfg.AlphaVantageAPIKey,
		AlphaVantageBaseURL: cfg.AlphaVantageBaseURL,
		RefreshInterval:     time.Duration(cfg.RefreshIntervalMs) * time.Millisecond,
		PacingDelay:         time.Duration(cfg.PacingDelayMs) * time.Millisecond,
		RegistryFilepath:    cfg.RegistryFilepath,
		ListenAddr:          cfg.ListenAddr,
		RQLiteEndpoint:      cfg.RQLiteEndpoint,
		RQLiteUser:          cfg.RQLiteUser,
		RQLitePass:          cfg.RQLitePass,
		RedisAddr:           cfg.RedisAddr,
		RedisPrefix:         cfg.RedisPrefix,
	}
	screener, err := service.NewScreener(ctx, &screenerCfg)
	if err != nil {
		log.Printf("creating screener service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	screener.Run(ctx)
}
