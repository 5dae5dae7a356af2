package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efreitasn/webhookbot/internal/domain"
	"github.com/efreitasn/webhookbot/internal/logging"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) Purge(time.Time) int {
	p.calls.Add(1)
	return 0
}

func TestSweeper_Tick_PurgesExpired(t *testing.T) {
	l := NewMemoryLedger(time.Minute, 10)
	ctx := context.Background()
	l.Reserve(ctx, domain.Fingerprint{Symbol: "A", Side: domain.SideBuy, Quantity: "1"}, baseTime)
	l.Reserve(ctx, domain.Fingerprint{Symbol: "B", Side: domain.SideBuy, Quantity: "1"}, baseTime.Add(2*time.Minute))

	s := NewSweeper(time.Second, l, logging.Discard())
	s.tick(baseTime.Add(90 * time.Second))

	if l.Len() != 1 {
		t.Fatalf("expected 1 live entry after sweep, got %d", l.Len())
	}
}

func TestSweeper_Start_StopsOnCancel(t *testing.T) {
	p := &countingPurger{}
	s := NewSweeper(5*time.Millisecond, p, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.calls.Load() == 0 {
		t.Fatal("expected sweeper to tick at least once")
	}

	cancel()
	time.Sleep(20 * time.Millisecond)
	stopped := p.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if p.calls.Load() != stopped {
		t.Fatal("expected sweeper to stop after cancel")
	}
}
