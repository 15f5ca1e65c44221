package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/screener/api"
	"github.com/dnldd/screener/cache"
	"github.com/dnldd/screener/database"
	"github.com/dnldd/screener/fetch"
	"github.com/dnldd/screener/metrics"
	"github.com/dnldd/screener/refresh"
	"github.com/dnldd/screener/registry"
	"github.com/dnldd/screener/shared"
	"github.com/dnldd/screener/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// ScreenerConfig represents the configuration struct for the screener service.
type ScreenerConfig struct {
	// AlphaVantageAPIKey is the Alpha Vantage API key. Static data is served without it.
	AlphaVantageAPIKey string
	// AlphaVantageBaseURL is the Alpha Vantage query endpoint.
	AlphaVantageBaseURL string
	// RefreshInterval is the wall clock interval between refresh pass starts.
	RefreshInterval time.Duration
	// PacingDelay is the minimum delay between provider requests.
	PacingDelay time.Duration
	// RegistryFilepath is the filepath to the instrument registry, the default
	// registry is used when empty.
	RegistryFilepath string
	// ListenAddr is the address the api server listens on.
	ListenAddr string
	// RQLiteEndpoint is the pass journal endpoint, passes are not journaled when empty.
	RQLiteEndpoint string
	// RQLiteUser is the pass journal user.
	RQLiteUser string
	// RQLitePass is the pass journal user pass.
	RQLitePass string
	// RedisAddr is the snapshot mirror address, snapshots are not mirrored when empty.
	RedisAddr string
	// RedisPrefix is the snapshot mirror key prefix.
	RedisPrefix string
}

// Validate asserts the config sane inputs.
func (cfg *ScreenerConfig) Validate() error {
	var errs error

	if cfg.AlphaVantageBaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("alpha vantage base url cannot be an empty string"))
	}
	if cfg.RefreshInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("refresh interval must be positive"))
	}
	if cfg.PacingDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("pacing delay cannot be negative"))
	}
	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}
	if cfg.RedisAddr != "" && cfg.RedisPrefix == "" {
		errs = errors.Join(errs, fmt.Errorf("redis prefix cannot be an empty string"))
	}

	return errs
}

// Screener represents the instrument screener service.
type Screener struct {
	cfg            *ScreenerConfig
	store          *store.Store
	refreshManager *refresh.Manager
	hub            *api.Hub
	server         *api.Server
	mirror         *cache.Mirror
	logger         *zerolog.Logger
	wg             sync.WaitGroup
}

// NewScreener initializes a new screener service.
func NewScreener(ctx context.Context, cfg *ScreenerConfig) (*Screener, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating screener config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "screener").Logger()

	var instruments []shared.Instrument
	switch cfg.RegistryFilepath {
	case "":
		instruments = registry.Default()
	default:
		instruments, err = registry.Load(cfg.RegistryFilepath)
		if err != nil {
			return nil, fmt.Errorf("loading instrument registry: %w", err)
		}
	}

	m := metrics.NewMetrics()
	instrumentStore := store.New(instruments)

	// A nil client must not be stored in the fetcher interface.
	var fetcher shared.MarketFetcher
	if cfg.AlphaVantageAPIKey != "" {
		client, err := fetch.NewAlphaVantageClient(&fetch.AlphaVantageConfig{
			APIKey:  cfg.AlphaVantageAPIKey,
			BaseURL: cfg.AlphaVantageBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating alpha vantage client: %w", err)
		}
		fetcher = client
	}

	var recordPass func(ctx context.Context, summary *refresh.PassSummary) error
	if cfg.RQLiteEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		db, err := database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.RQLiteEndpoint,
			User:     cfg.RQLiteUser,
			Pass:     cfg.RQLitePass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
		recordPass = db.PersistPass
	}

	var mirror *cache.Mirror
	if cfg.RedisAddr != "" {
		mirrorLogger := logger.With().Str("component", "mirror").Logger()
		mirror, err = cache.NewMirror(ctx, &cache.MirrorConfig{
			Addr:   cfg.RedisAddr,
			Prefix: cfg.RedisPrefix,
			Logger: &mirrorLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating snapshot mirror: %w", err)
		}
		instrumentStore.Subscribe("mirror", mirror.SendSnapshot)
	}

	hubLogger := logger.With().Str("component", "hub").Logger()
	hub := api.NewHub(&hubLogger, m)
	instrumentStore.Subscribe("hub", hub.SendSnapshot)

	serverLogger := logger.With().Str("component", "server").Logger()
	server, err := api.NewServer(&api.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		Store:      instrumentStore,
		Hub:        hub,
		Metrics:    m,
		Logger:     &serverLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating api server: %w", err)
	}

	refreshMgrLogger := logger.With().Str("component", "refreshmanager").Logger()
	refreshMgr, err := refresh.NewManager(&refresh.ManagerConfig{
		Instruments:   instruments,
		Fetcher:       fetcher,
		Store:         instrumentStore,
		APIKey:        cfg.AlphaVantageAPIKey,
		Interval:      cfg.RefreshInterval,
		PacingDelay:   cfg.PacingDelay,
		BasisInterval: refresh.DefaultBasisInterval,
		RecordPass:    recordPass,
		Metrics:       m,
		Logger:        &refreshMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating refresh manager: %w", err)
	}

	service := &Screener{
		cfg:            cfg,
		store:          instrumentStore,
		refreshManager: refreshMgr,
		hub:            hub,
		server:         server,
		mirror:         mirror,
		logger:         &logger,
	}

	return service, nil
}

// Run handles the lifecycle processes of the screener service.
func (s *Screener) Run(ctx context.Context) {
	s.wg.Add(3)

	go func() {
		s.hub.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		s.server.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		s.refreshManager.Run(ctx)
		s.wg.Done()
	}()

	if s.mirror != nil {
		s.wg.Add(1)
		go func() {
			s.mirror.Run(ctx)
			s.wg.Done()
		}()
	}

	s.logger.Info().Msgf("screener tracking %d instruments", len(s.store.Snapshot().Instruments))

	s.wg.Wait()
}
