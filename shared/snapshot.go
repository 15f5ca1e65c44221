package shared

import (
	"strings"
	"time"
)

// Sample represents a single parsed provider time series entry.
type Sample struct {
	Time  time.Time
	Close float64
}

// Closes extracts the closing prices of the provided samples.
func Closes(samples []Sample) []float64 {
	closes := make([]float64, len(samples))
	for idx := range samples {
		closes[idx] = samples[idx].Close
	}

	return closes
}

// Snapshot represents the published state of all tracked instruments. A snapshot is
// never mutated once published.
type Snapshot struct {
	Instruments []Instrument         `json:"instruments"`
	Loading     bool                 `json:"loading"`
	LastUpdated map[string]time.Time `json:"lastUpdated"`
	PublishedAt time.Time            `json:"publishedAt"`
	PassID      string               `json:"passId,omitempty"`
}

// NewSeedSnapshot initializes the snapshot served before the first completed pass.
func NewSeedSnapshot(seed []Instrument) *Snapshot {
	instruments := make([]Instrument, len(seed))
	for idx := range seed {
		instruments[idx] = seed[idx].Clone()
		instruments[idx].EnsureTimeframes()
	}

	return &Snapshot{
		Instruments: instruments,
		Loading:     true,
		LastUpdated: make(map[string]time.Time),
	}
}

// Find returns the instrument with the provided id, matched case insensitively.
func (s *Snapshot) Find(id string) (Instrument, bool) {
	for idx := range s.Instruments {
		if strings.EqualFold(s.Instruments[idx].ID, id) {
			return s.Instruments[idx], true
		}
	}

	return Instrument{}, false
}

// Clone returns a deep copy of the snapshot, used as the working copy of a refresh pass.
func (s *Snapshot) Clone() *Snapshot {
	instruments := make([]Instrument, len(s.Instruments))
	for idx := range s.Instruments {
		instruments[idx] = s.Instruments[idx].Clone()
	}

	lastUpdated := make(map[string]time.Time, len(s.LastUpdated))
	for id, t := range s.LastUpdated {
		lastUpdated[id] = t
	}

	return &Snapshot{
		Instruments: instruments,
		Loading:     s.Loading,
		LastUpdated: lastUpdated,
		PublishedAt: s.PublishedAt,
		PassID:      s.PassID,
	}
}
