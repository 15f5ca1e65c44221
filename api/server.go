package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/screener/metrics"
	"github.com/dnldd/screener/shared"
	"github.com/dnldd/screener/store"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// shutdownTimeout is the grace period for in-flight requests on shutdown.
	shutdownTimeout = 5 * time.Second
	// readHeaderTimeout bounds the time allowed to read request headers.
	readHeaderTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// ServerConfig represents the configuration of the api server.
type ServerConfig struct {
	// ListenAddr represents the address the server listens on.
	ListenAddr string
	// Store represents the instrument store.
	Store *store.Store
	// Hub represents the websocket hub.
	Hub *Hub
	// Metrics represents the screener metrics.
	Metrics *metrics.Metrics
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ServerConfig) Validate() error {
	var errs error

	if cfg.ListenAddr == "" {
		errs = errors.Join(errs, fmt.Errorf("listen address cannot be an empty string"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("instrument store cannot be nil"))
	}
	if cfg.Hub == nil {
		errs = errors.Join(errs, fmt.Errorf("websocket hub cannot be nil"))
	}
	if cfg.Metrics == nil {
		errs = errors.Join(errs, fmt.Errorf("metrics cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// InstrumentsResponse represents the screened instruments response.
type InstrumentsResponse struct {
	Loading     bool                `json:"loading"`
	PublishedAt time.Time           `json:"publishedAt"`
	PassID      string              `json:"passId,omitempty"`
	Count       int                 `json:"count"`
	Instruments []shared.Instrument `json:"instruments"`
}

// StatusResponse represents the screener status response.
type StatusResponse struct {
	Loading      bool                 `json:"loading"`
	PublishedAt  time.Time            `json:"publishedAt"`
	PassID       string               `json:"passId,omitempty"`
	LastUpdated  map[string]time.Time `json:"lastUpdated"`
	Publications uint64               `json:"publications"`
	Clients      int                  `json:"clients"`
}

// errorResponse represents an error response.
type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the published snapshot over http and websockets.
type Server struct {
	cfg *ServerConfig
	srv *http.Server
}

// NewServer initializes the api server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	s := &Server{cfg: cfg}
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s, nil
}

// setCORS sets CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// writeJSON writes the provided value as a json response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.cfg.Logger.Error().Msgf("encoding response: %v", err)
	}
}

// writeError writes the provided error as a json response.
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// parseTypes parses a comma separated instrument type list. "all" or an empty
// list matches every type.
func parseTypes(s string) ([]shared.InstrumentType, error) {
	var types []shared.InstrumentType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, "all") {
			continue
		}

		it, err := shared.ParseInstrumentType(part)
		if err != nil {
			return nil, err
		}
		types = append(types, it)
	}

	return types, nil
}

// parseFilter builds the screening filter and ordering from the provided query.
func parseFilter(r *http.Request) (store.Filter, store.SortKey, bool, error) {
	q := r.URL.Query()
	var filter store.Filter
	var errs error

	types, err := parseTypes(q.Get("type"))
	if err != nil {
		errs = errors.Join(errs, err)
	}
	filter.Types = types

	filter.Timeframe = shared.OneHour
	if tf := q.Get("timeframe"); tf != "" {
		filter.Timeframe, err = shared.ParseTimeframe(tf)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}

	filter.Condition, err = store.ParseCondition(q.Get("condition"))
	if err != nil {
		errs = errors.Join(errs, err)
	}

	if filter.Condition != store.NoCondition {
		value := q.Get("value")
		if value == "" {
			errs = errors.Join(errs, fmt.Errorf("condition %s requires a value", filter.Condition))
		} else {
			filter.Threshold, err = strconv.ParseFloat(value, 64)
			if err != nil {
				errs = errors.Join(errs, fmt.Errorf("parsing condition value %q: %w", value, err))
			}
		}
	}

	key, err := store.ParseSortKey(q.Get("sort"))
	if err != nil {
		errs = errors.Join(errs, err)
	}

	var desc bool
	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown sort order provided: %q", q.Get("order")))
	}

	return filter, key, desc, errs
}

// handleInstruments serves the screened instruments of the current snapshot.
func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	filter, key, desc, err := parseFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	snap := s.cfg.Store.Snapshot()
	instruments := store.Screen(snap, filter)
	if r.URL.Query().Get("sort") != "" {
		store.Sort(instruments, key, filter.Timeframe, desc)
	}

	s.writeJSON(w, http.StatusOK, InstrumentsResponse{
		Loading:     snap.Loading,
		PublishedAt: snap.PublishedAt,
		PassID:      snap.PassID,
		Count:       len(instruments),
		Instruments: instruments,
	})
}

// handleInstrument serves a single instrument of the current snapshot.
func (s *Server) handleInstrument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inst, ok := s.cfg.Store.Snapshot().Find(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no instrument found with id %s", id))
		return
	}

	s.writeJSON(w, http.StatusOK, inst)
}

// handleStatus serves the refresh status of the current snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Store.Snapshot()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Loading:      snap.Loading,
		PublishedAt:  snap.PublishedAt,
		PassID:       snap.PassID,
		LastUpdated:  snap.LastUpdated,
		Publications: s.cfg.Store.Publications(),
		Clients:      s.cfg.Hub.ClientCount(),
	})
}

// handleWS upgrades the connection and streams published snapshots.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Error().Msgf("ws upgrade: %v", err)
		return
	}

	s.cfg.Hub.register(conn, s.cfg.Store.Snapshot())
}

// Handler returns the http handler serving every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/instruments", s.handleInstruments)
	mux.HandleFunc("GET /api/instruments/{id}", s.handleInstrument)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", s.cfg.Metrics.Handler())

	return mux
}

// Run manages the lifecycle processes of the api server.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := s.srv.Shutdown(shutdownCtx)
		if err != nil {
			s.cfg.Logger.Error().Msgf("shutting down api server: %v", err)
		}
	}()

	s.cfg.Logger.Info().Msgf("api server listening on %s", s.cfg.ListenAddr)
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.cfg.Logger.Error().Msgf("api server: %v", err)
	}
}
