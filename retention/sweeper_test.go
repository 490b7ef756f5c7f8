package retention

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingStore struct {
	mu     sync.Mutex
	sweeps int
}

func (r *recordingStore) SweepAll(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweeps
}

func TestSweeperRuns(t *testing.T) {
	store := &recordingStore{}
	s := NewSweeper(store, 10*time.Millisecond)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return store.count() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestSweeperStartIdempotent(t *testing.T) {
	store := &recordingStore{}
	s := NewSweeper(store, time.Hour)

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSweepNow(t *testing.T) {
	store := &recordingStore{}
	s := NewSweeper(store, time.Hour)

	s.SweepNow()
	assert.Equal(t, 1, store.count())
}
