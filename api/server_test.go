package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/screener/metrics"
	"github.com/dnldd/screener/shared"
	"github.com/dnldd/screener/store"
	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

func testInstruments() []shared.Instrument {
	newInstrument := func(id string, symbol string, it shared.InstrumentType, price float64, value float64, prev float64) shared.Instrument {
		inst := shared.Instrument{ID: id, Symbol: symbol, Type: it, Price: price, Close: price}
		inst.EnsureTimeframes()
		inst.RSI[shared.OneHour] = shared.NewRSIData(value, prev)
		return inst
	}

	return []shared.Instrument{
		newInstrument("EURUSD", "EUR/USD", shared.FXMajor, 1.0855, 72, 68),
		newInstrument("GBPUSD", "GBP/USD", shared.FXMajor, 1.271, 65, 71),
		newInstrument("EURGBP", "EUR/GBP", shared.FXMinor, 0.854, 28, 33),
		newInstrument("XAUUSD", "XAU/USD", shared.Commodity, 2330.5, 35, 25),
	}
}

func testServer(t *testing.T) (*Server, *store.Store, *Hub) {
	t.Helper()

	logger := zerolog.Nop()
	m := metrics.NewMetrics()
	s := store.New(testInstruments())
	hub := NewHub(&logger, m)

	server, err := NewServer(&ServerConfig{
		ListenAddr: ":0",
		Store:      s,
		Hub:        hub,
		Metrics:    m,
		Logger:     &logger,
	})
	assert.NoError(t, err)

	return server, s, hub
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	return rec
}

func TestServerConfigValidate(t *testing.T) {
	cfg := &ServerConfig{}
	err := cfg.Validate()
	assert.Error(t, err)
	for _, want := range []string{"listen address cannot be an empty string", "instrument store cannot be nil",
		"websocket hub cannot be nil", "metrics cannot be nil", "logger cannot be nil"} {
		assert.True(t, strings.Contains(err.Error(), want))
	}

	_, err = NewServer(cfg)
	assert.Error(t, err)
}

func TestHandleInstruments(t *testing.T) {
	server, _, _ := testServer(t)
	h := server.Handler()

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantIDs    []string
	}{
		{
			name:       "all instruments",
			target:     "/api/instruments",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"EURUSD", "GBPUSD", "EURGBP", "XAUUSD"},
		},
		{
			name:       "type filter",
			target:     "/api/instruments?type=fx_major,commodity",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"EURUSD", "GBPUSD", "XAUUSD"},
		},
		{
			name:       "all types",
			target:     "/api/instruments?type=all",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"EURUSD", "GBPUSD", "EURGBP", "XAUUSD"},
		},
		{
			name:       "rsi above",
			target:     "/api/instruments?timeframe=1h&condition=above&value=60",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"EURUSD", "GBPUSD"},
		},
		{
			name:       "cross above with provider timeframe id",
			target:     "/api/instruments?timeframe=H1&condition=cross_above&value=30",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"XAUUSD"},
		},
		{
			name:       "sorted by rsi descending",
			target:     "/api/instruments?sort=rsi&order=desc",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"EURUSD", "GBPUSD", "XAUUSD", "EURGBP"},
		},
		{
			name:       "sorted by price",
			target:     "/api/instruments?sort=price",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"EURGBP", "EURUSD", "GBPUSD", "XAUUSD"},
		},
		{
			name:       "unknown type",
			target:     "/api/instruments?type=crypto",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "condition without value",
			target:     "/api/instruments?condition=below",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed value",
			target:     "/api/instruments?condition=below&value=low",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown order",
			target:     "/api/instruments?sort=price&order=sideways",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := get(t, h, test.target)
			assert.Equal(t, rec.Code, test.wantStatus)
			if test.wantStatus != http.StatusOK {
				var resp errorResponse
				err := json.NewDecoder(rec.Body).Decode(&resp)
				assert.NoError(t, err)
				assert.NotEqual(t, resp.Error, "")
				return
			}

			var resp InstrumentsResponse
			err := json.NewDecoder(rec.Body).Decode(&resp)
			assert.NoError(t, err)
			assert.True(t, resp.Loading)
			assert.Equal(t, resp.Count, len(test.wantIDs))

			ids := make([]string, len(resp.Instruments))
			for idx := range resp.Instruments {
				ids[idx] = resp.Instruments[idx].ID
			}
			assert.Equal(t, ids, test.wantIDs)
		})
	}
}

func TestHandleInstrument(t *testing.T) {
	server, s, _ := testServer(t)
	h := server.Handler()

	// Ensure a single instrument can be fetched.
	rec := get(t, h, "/api/instruments/eurusd")
	assert.Equal(t, rec.Code, http.StatusOK)

	var inst shared.Instrument
	err := json.NewDecoder(rec.Body).Decode(&inst)
	assert.NoError(t, err)
	assert.Equal(t, inst.ID, "EURUSD")
	assert.Equal(t, inst.Type, shared.FXMajor)
	assert.Equal(t, inst.RSI[shared.OneHour], shared.NewRSIData(72, 68))
	assert.Equal(t, len(inst.RSI), len(shared.AllTimeframes))

	// Ensure unknown instruments are not found.
	rec = get(t, h, "/api/instruments/BTCUSD")
	assert.Equal(t, rec.Code, http.StatusNotFound)

	// Ensure registry ids that are not upper case remain reachable.
	next := s.Snapshot().Clone()
	next.Instruments[2].ID = "EurGbp"
	assert.NoError(t, s.Publish(next))

	for _, target := range []string{"/api/instruments/EURGBP", "/api/instruments/EurGbp", "/api/instruments/eurgbp"} {
		rec = get(t, h, target)
		assert.Equal(t, rec.Code, http.StatusOK)

		var got shared.Instrument
		err = json.NewDecoder(rec.Body).Decode(&got)
		assert.NoError(t, err)
		assert.Equal(t, got.ID, "EurGbp")
	}
}

func TestHandleStatus(t *testing.T) {
	server, s, _ := testServer(t)
	h := server.Handler()

	rec := get(t, h, "/api/status")
	assert.Equal(t, rec.Code, http.StatusOK)

	var status StatusResponse
	err := json.NewDecoder(rec.Body).Decode(&status)
	assert.NoError(t, err)
	assert.True(t, status.Loading)
	assert.Equal(t, status.Publications, uint64(0))

	// Ensure published snapshots are reflected.
	now := time.Date(2025, 2, 4, 15, 0, 0, 0, time.UTC)
	next := s.Snapshot().Clone()
	next.Loading = false
	next.PassID = "pass-1"
	next.PublishedAt = now
	next.LastUpdated["EURUSD"] = now
	assert.NoError(t, s.Publish(next))

	rec = get(t, h, "/api/status")
	err = json.NewDecoder(rec.Body).Decode(&status)
	assert.NoError(t, err)
	assert.False(t, status.Loading)
	assert.Equal(t, status.PassID, "pass-1")
	assert.Equal(t, status.Publications, uint64(1))
	assert.True(t, status.PublishedAt.Equal(now))
	assert.True(t, status.LastUpdated["EURUSD"].Equal(now))

	// Ensure metrics are served.
	rec = get(t, h, "/metrics")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.True(t, strings.Contains(rec.Body.String(), "screener_loading"))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env Envelope
	err := conn.ReadJSON(&env)
	assert.NoError(t, err)

	return env
}

func TestWebsocketStream(t *testing.T) {
	server, s, hub := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	s.Subscribe("hub", hub.SendSnapshot)

	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	defer conn.Close()

	// Ensure the current snapshot is sent on connect.
	env := readEnvelope(t, conn)
	assert.Equal(t, env.Type, "snapshot")
	assert.True(t, env.Snapshot.Loading)
	assert.Equal(t, len(env.Snapshot.Instruments), 4)

	// Ensure published snapshots are streamed.
	next := s.Snapshot().Clone()
	next.Loading = false
	next.PassID = "pass-1"
	assert.NoError(t, s.Publish(next))

	env = readEnvelope(t, conn)
	assert.False(t, env.Snapshot.Loading)
	assert.Equal(t, env.Snapshot.PassID, "pass-1")
	assert.Equal(t, hub.ClientCount(), 1)

	// Ensure disconnected clients are removed.
	conn.Close()
	deadline := time.After(5 * time.Second)
	for hub.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("expected client removal, %d clients remain", hub.ClientCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
