package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/screener/metrics"
	"github.com/dnldd/screener/shared"
	"github.com/dnldd/screener/store"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is the default wall clock interval between pass starts.
	DefaultInterval = time.Minute
	// DefaultPacingDelay is the default minimum delay between provider requests.
	DefaultPacingDelay = 1200 * time.Millisecond
	// DefaultBasisInterval is the default basis series interval in minutes.
	DefaultBasisInterval = 60
)

// Pass outcomes.
const (
	outcomePublished = "published"
	outcomeStatic    = "static"
	outcomeCancelled = "cancelled"
	outcomeSkipped   = "skipped"
)

var (
	// ErrPassInFlight is returned when a pass is requested while another is running.
	ErrPassInFlight = errors.New("refresh pass in flight")
)

// instrumentResult represents the outcome of refreshing a single instrument.
type instrumentResult int

const (
	resultUpdated instrumentResult = iota
	resultSkipped
	resultFailed
)

// PassSummary represents the summary of a completed refresh pass.
type PassSummary struct {
	ID        string    `json:"id"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Attempted int       `json:"attempted"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Static    bool      `json:"static"`
}

// ManagerConfig represents the configuration for the refresh manager.
type ManagerConfig struct {
	// Instruments represents the instrument registry, refreshed in order.
	Instruments []shared.Instrument
	// Fetcher represents the market data client.
	Fetcher shared.MarketFetcher
	// Store represents the instrument store passes publish to.
	Store *store.Store
	// APIKey represents the provider credential. Passes serve static data without it.
	APIKey string
	// Interval represents the wall clock interval between pass starts.
	Interval time.Duration
	// PacingDelay represents the minimum delay between provider requests.
	PacingDelay time.Duration
	// RSIPeriod represents the RSI lookback period.
	RSIPeriod int
	// BasisInterval represents the basis series interval in minutes.
	BasisInterval int
	// RecordPass records the summary of a published pass.
	RecordPass func(ctx context.Context, summary *PassSummary) error
	// Metrics represents the screener metrics.
	Metrics *metrics.Metrics
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Instruments) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no instruments provided for refresh manager"))
	}
	if cfg.APIKey != "" && cfg.Fetcher == nil {
		errs = errors.Join(errs, fmt.Errorf("market fetcher cannot be nil"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("instrument store cannot be nil"))
	}
	if cfg.Interval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("refresh interval must be positive"))
	}
	if cfg.PacingDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("pacing delay cannot be negative"))
	}
	if cfg.RSIPeriod < 0 {
		errs = errors.Join(errs, fmt.Errorf("rsi period cannot be negative"))
	}
	if cfg.BasisInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("basis interval must be positive"))
	}
	if cfg.Metrics == nil {
		errs = errors.Join(errs, fmt.Errorf("metrics cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager represents the refresh manager. It runs sequential refresh passes over the
// instrument registry and publishes each completed pass to the store.
type Manager struct {
	cfg          *ManagerConfig
	limiter      *rate.Limiter
	jobScheduler *gocron.Scheduler
	inFlight     atomic.Bool
	staticOnce   sync.Once
}

// NewManager initializes the refresh manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating refresh manager config: %w", err)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SetMaxConcurrentJobs(1, gocron.RescheduleMode)

	mgr := &Manager{
		cfg:          cfg,
		limiter:      rate.NewLimiter(rate.Every(cfg.PacingDelay), 1),
		jobScheduler: scheduler,
	}

	return mgr, nil
}

// refreshInstrument fetches the basis series of the provided instrument and merges it
// into the instrument. Only cancellation of the provided context is returned as an error.
func (m *Manager) refreshInstrument(ctx context.Context, inst *shared.Instrument) (instrumentResult, error) {
	pair, err := shared.ParseSymbol(inst.Symbol)
	if err != nil {
		m.cfg.Logger.Warn().Msgf("mapping symbol of %s: %v", inst.ID, err)
		return resultSkipped, nil
	}

	err = m.limiter.Wait(ctx)
	if err != nil {
		return resultFailed, fmt.Errorf("pacing request for %s: %w", inst.ID, err)
	}

	start := time.Now()
	samples, err := m.cfg.Fetcher.FetchIntradaySeries(ctx, pair, m.cfg.BasisInterval)
	m.cfg.Metrics.FetchDur.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return resultFailed, fmt.Errorf("fetching series for %s: %w", inst.ID, ctx.Err())
		}

		m.cfg.Metrics.FetchesTotal.WithLabelValues(metrics.ResultError).Inc()
		m.cfg.Logger.Warn().Msgf("fetching series for %s (%s): %v", inst.ID, pair, err)
		return resultFailed, nil
	}

	if len(samples) == 0 {
		m.cfg.Metrics.FetchesTotal.WithLabelValues(metrics.ResultEmpty).Inc()
		m.cfg.Logger.Warn().Msgf("no intraday data returned for %s (%s)", inst.ID, pair)
		return resultFailed, nil
	}

	m.cfg.Metrics.FetchesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	mergeSeries(inst, shared.Closes(samples), m.cfg.RSIPeriod)

	return resultUpdated, nil
}

// RunPass runs a single refresh pass over the instrument registry and publishes the
// result. A cancelled pass publishes nothing.
func (m *Manager) RunPass(ctx context.Context) (*PassSummary, error) {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.cfg.Metrics.PassesTotal.WithLabelValues(outcomeSkipped).Inc()
		return nil, ErrPassInFlight
	}
	defer m.inFlight.Store(false)

	summary := &PassSummary{
		ID:      uuid.NewString(),
		Started: time.Now(),
	}

	work := m.cfg.Store.Snapshot().Clone()
	work.PassID = summary.ID

	if m.cfg.APIKey == "" {
		m.staticOnce.Do(func() {
			m.cfg.Logger.Warn().Msg("no alpha vantage api key configured, serving static instrument data")
		})

		summary.Static = true
		summary.Skipped = len(m.cfg.Instruments)
	} else {
		index := make(map[string]int, len(work.Instruments))
		for idx := range work.Instruments {
			index[work.Instruments[idx].ID] = idx
		}

		for _, inst := range m.cfg.Instruments {
			if ctx.Err() != nil {
				m.cfg.Metrics.PassesTotal.WithLabelValues(outcomeCancelled).Inc()
				return nil, fmt.Errorf("refresh pass %s cancelled: %w", summary.ID, ctx.Err())
			}

			idx, ok := index[inst.ID]
			if !ok {
				entry := inst.Clone()
				entry.EnsureTimeframes()
				work.Instruments = append(work.Instruments, entry)
				idx = len(work.Instruments) - 1
				index[inst.ID] = idx
			}

			summary.Attempted++
			result, err := m.refreshInstrument(ctx, &work.Instruments[idx])
			if err != nil {
				m.cfg.Metrics.PassesTotal.WithLabelValues(outcomeCancelled).Inc()
				return nil, fmt.Errorf("refresh pass %s cancelled: %w", summary.ID, err)
			}

			switch result {
			case resultUpdated:
				summary.Updated++
				work.LastUpdated[inst.ID] = time.Now()
			case resultSkipped:
				summary.Skipped++
			case resultFailed:
				summary.Failed++
			}
		}
	}

	summary.Finished = time.Now()
	work.Loading = false
	work.PublishedAt = summary.Finished

	err := m.cfg.Store.Publish(work)
	if err != nil {
		return nil, fmt.Errorf("publishing pass %s: %w", summary.ID, err)
	}

	outcome := outcomePublished
	if summary.Static {
		outcome = outcomeStatic
	}
	m.cfg.Metrics.PassesTotal.WithLabelValues(outcome).Inc()
	m.cfg.Metrics.PassDur.Observe(summary.Finished.Sub(summary.Started).Seconds())
	m.cfg.Metrics.InstrumentsUpdated.Set(float64(summary.Updated))
	m.cfg.Metrics.InstrumentsSkipped.Set(float64(summary.Skipped + summary.Failed))
	m.cfg.Metrics.LastPassTimestamp.Set(float64(summary.Finished.Unix()))
	m.cfg.Metrics.Loading.Set(0)

	if m.cfg.RecordPass != nil {
		err := m.cfg.RecordPass(ctx, summary)
		if err != nil {
			m.cfg.Logger.Error().Msgf("recording pass %s: %v", summary.ID, err)
		}
	}

	return summary, nil
}

// scheduledPass runs a refresh pass on a scheduler tick.
func (m *Manager) scheduledPass(ctx context.Context) {
	summary, err := m.RunPass(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrPassInFlight):
			m.cfg.Logger.Warn().Msg("skipping refresh tick, previous pass still in flight")
		case ctx.Err() != nil:
			m.cfg.Logger.Info().Msgf("refresh pass abandoned: %v", err)
		default:
			m.cfg.Logger.Error().Msgf("running refresh pass: %v", err)
		}
		return
	}

	m.cfg.Logger.Info().Msgf("pass %s published: %d attempted, %d updated, %d skipped, %d failed in %v",
		summary.ID, summary.Attempted, summary.Updated, summary.Skipped, summary.Failed,
		summary.Finished.Sub(summary.Started).Round(time.Millisecond))
	if summary.Attempted > 0 && summary.Updated == 0 {
		m.cfg.Logger.Debug().Msgf("no instruments updated by pass: %s", spew.Sdump(summary))
	}
}

// Run manages the lifecycle processes of the refresh manager. The first pass starts
// immediately, subsequent passes start every interval from the previous start.
func (m *Manager) Run(ctx context.Context) {
	_, err := m.jobScheduler.Every(m.cfg.Interval).Do(func() {
		m.scheduledPass(ctx)
	})
	if err != nil {
		m.cfg.Logger.Error().Msgf("scheduling refresh pass: %v", err)
		return
	}

	m.jobScheduler.StartAsync()

	<-ctx.Done()
	m.jobScheduler.Stop()
}
