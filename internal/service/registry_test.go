package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbendtzen/game-show-backend/internal/clock"
)

func TestSweepEvictsOverAgeSessions(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(clk, zap.NewNop())

	old := NewSession("OLD111", "h1", clk.Now())
	r.Put(old)
	clk.Advance(45 * time.Minute)
	young := NewSession("NEW222", "h2", clk.Now())
	r.Put(young)
	clk.Advance(30 * time.Minute)

	evicted := r.Sweep(time.Hour)

	require.Equal(t, []string{"OLD111"}, evicted)
	_, ok := r.Get("OLD111")
	assert.False(t, ok)
	_, ok = r.Get("NEW222")
	assert.True(t, ok)
}

func TestSweepPurgesLongRunningGamesToo(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(clk, zap.NewNop())

	s := NewSession("123456", "h1", clk.Now())
	s.Started = true
	r.Put(s)
	clk.Advance(2 * time.Hour)

	// Age is measured from creation, not activity; an in-progress game past
	// the threshold is evicted and relies on store restore.
	evicted := r.Sweep(time.Hour)
	assert.Equal(t, []string{"123456"}, evicted)
}

func TestScheduleEvictionReplacesExistingTimer(t *testing.T) {
	clk := clock.New()
	r := NewRegistry(clk, zap.NewNop())
	r.Put(NewSession("123456", "h1", clk.Now()))

	fired := make(chan string, 2)
	r.ScheduleEviction("123456", 10*time.Millisecond, func(code string) { fired <- code })
	r.ScheduleEviction("123456", 30*time.Millisecond, func(code string) { fired <- code })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("eviction never fired")
	}
	select {
	case code := <-fired:
		t.Fatalf("stale timer fired too: %s", code)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelEviction(t *testing.T) {
	clk := clock.New()
	r := NewRegistry(clk, zap.NewNop())

	fired := make(chan string, 1)
	r.ScheduleEviction("123456", 10*time.Millisecond, func(code string) { fired <- code })
	assert.True(t, r.CancelEviction("123456"))

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}

	assert.False(t, r.CancelEviction("123456"), "second cancel is a no-op")
}
