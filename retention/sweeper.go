// Package retention runs the periodic ephemeral-message sweep.
//
// The retention rule itself (TTL filtering, empty-record removal)
// lives in the messaging store; this package owns the timer. Sweeps
// also run opportunistically on conversation focus, driven by callers.
package retention

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HistoryStore is the slice of the message store the sweeper needs.
type HistoryStore interface {
	SweepAll(now time.Time) error
}

// DefaultInterval is how often the background sweep fires.
const DefaultInterval = 30 * time.Second

// Sweeper periodically removes expired messages.
type Sweeper struct {
	store    HistoryStore
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

// NewSweeper creates a sweeper over the given store. A non-positive
// interval falls back to DefaultInterval.
func NewSweeper(store HistoryStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: store, interval: interval}
}

// Start launches the background sweep loop. Starting a running sweeper
// is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})

	go s.run(s.done)
}

func (s *Sweeper) run(done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// SweepNow runs one sweep immediately. Safe to call concurrently with
// the background loop; the store serializes per-record mutations.
func (s *Sweeper) SweepNow() {
	if err := s.store.SweepAll(time.Now()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SweepNow",
			"error":    err.Error(),
		}).Error("Ephemeral sweep failed")
	}
}

// Stop halts the background loop.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
}
