package store

import (
	"sync"
	"testing"
	"time"

	"github.com/dnldd/screener/shared"
	"github.com/peterldowns/testy/assert"
)

func testInstruments() []shared.Instrument {
	eurusd := shared.Instrument{ID: "EURUSD", Symbol: "EUR/USD", Type: shared.FXMajor, Price: 1.08}
	eurusd.EnsureTimeframes()
	xauusd := shared.Instrument{ID: "XAUUSD", Symbol: "XAU/USD", Type: shared.Commodity, Price: 2330}
	xauusd.EnsureTimeframes()

	return []shared.Instrument{eurusd, xauusd}
}

func TestStore(t *testing.T) {
	seed := testInstruments()
	s := New(seed)

	// Ensure the store serves the seed while loading.
	assert.True(t, s.Loading())
	assert.Equal(t, len(s.Snapshot().Instruments), 2)
	assert.Equal(t, s.Publications(), uint64(0))
	_, ok := s.LastUpdated("EURUSD")
	assert.False(t, ok)

	// Ensure seed mutations do not leak into the store.
	seed[0].Price = 99
	assert.Equal(t, s.Snapshot().Instruments[0].Price, 1.08)

	var notified []*shared.Snapshot
	s.Subscribe("test", func(snap *shared.Snapshot) {
		notified = append(notified, snap)
	})

	// Ensure a nil snapshot cannot be published.
	err := s.Publish(nil)
	assert.Error(t, err)
	assert.Equal(t, len(notified), 0)

	// Ensure a published snapshot replaces the current one and notifies subscribers.
	now := time.Date(2025, 2, 4, 15, 0, 0, 0, time.UTC)
	next := s.Snapshot().Clone()
	next.Loading = false
	next.Instruments[0].Price = 1.09
	next.LastUpdated["EURUSD"] = now
	err = s.Publish(next)
	assert.NoError(t, err)
	assert.False(t, s.Loading())
	assert.Equal(t, s.Snapshot().Instruments[0].Price, 1.09)
	assert.Equal(t, s.Publications(), uint64(1))
	assert.Equal(t, len(notified), 1)
	assert.Equal(t, notified[0], next)

	updated, ok := s.LastUpdated("EURUSD")
	assert.True(t, ok)
	assert.Equal(t, updated, now)

	// Ensure unsubscribed subscribers are no longer notified.
	s.Unsubscribe("test")
	err = s.Publish(next.Clone())
	assert.NoError(t, err)
	assert.Equal(t, len(notified), 1)
	assert.Equal(t, s.Publications(), uint64(2))
}

func TestStoreConcurrentReads(t *testing.T) {
	s := New(testInstruments())

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				// Ensure readers always observe a consistent snapshot.
				snap := s.Snapshot()
				if snap.Instruments[0].Price != snap.Instruments[1].Price-1 &&
					!snap.Loading {
					t.Errorf("observed torn snapshot: %v, %v",
						snap.Instruments[0].Price, snap.Instruments[1].Price)
					return
				}
			}
		}()
	}

	for idx := range 100 {
		next := s.Snapshot().Clone()
		next.Loading = false
		next.Instruments[0].Price = float64(idx)
		next.Instruments[1].Price = float64(idx + 1)
		err := s.Publish(next)
		assert.NoError(t, err)
	}

	close(done)
	wg.Wait()
}
