package market_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shubham-shewale/market-sim/internal/testutils"
	"github.com/shubham-shewale/market-sim/pkg/market"
	"github.com/shubham-shewale/market-sim/pkg/models"
)

var epoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, cfg market.Config, rnd market.Rand) (*market.Engine, *testutils.MockClock) {
	t.Helper()
	clock := &testutils.MockClock{CurrentTime: epoch}
	e, err := market.New(cfg, zap.NewNop(), rnd, clock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e, clock
}

func singleInstrument(symbol string, category models.Category, price string) market.Config {
	cfg := market.DefaultConfig()
	cfg.Instruments = []models.Instrument{{
		Symbol:   symbol,
		Name:     symbol,
		Category: category,
		Price:    decimal.RequireFromString(price),
	}}
	return cfg
}

func TestEngine_BondMidpointDraw(t *testing.T) {
	e, _ := newEngine(t, singleInstrument("X", models.Bonds, "100.00"), &testutils.MockRand{ValFloat: 0.5})

	e.Tick()

	inst, ok := e.Instrument("X")
	if !ok {
		t.Fatal("Expected instrument X")
	}
	if !inst.Price.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("Expected price 100.00, got %s", inst.Price)
	}
	if !inst.Change.IsZero() {
		t.Errorf("Expected zero change, got %s", inst.Change)
	}
	if !inst.ChangePercent.IsZero() {
		t.Errorf("Expected zero percent, got %s", inst.ChangePercent)
	}
}

func TestEngine_CryptoMaxDraw(t *testing.T) {
	rnd := &testutils.MockRand{ValFloat: 0.5}
	e, _ := newEngine(t, singleInstrument("BTC", models.Crypto, "43250.00"), rnd)

	rnd.Set(1.0)
	e.Tick()

	inst, _ := e.Instrument("BTC")
	if !inst.Price.Equal(decimal.RequireFromString("43898.75")) {
		t.Errorf("Expected price 43898.75, got %s", inst.Price)
	}
	if !inst.Change.Equal(decimal.RequireFromString("648.75")) {
		t.Errorf("Expected change 648.75, got %s", inst.Change)
	}
	if !inst.ChangePercent.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("Expected percent 1.50, got %s", inst.ChangePercent)
	}
}

func TestEngine_TickStampsAndDivisionOrder(t *testing.T) {
	// 2.45 * (1 + 0.0025) = 2.456125 -> 2.46; change 0.01; 0.01 / 2.45 * 100 = 0.408.. -> 0.41
	rnd := &testutils.MockRand{ValFloat: 0.5}
	e, clock := newEngine(t, singleInstrument("DE10Y", models.Bonds, "2.45"), rnd)

	clock.Advance(3 * time.Second)
	rnd.Set(1.0)
	e.Tick()

	inst, _ := e.Instrument("DE10Y")
	if !inst.Price.Equal(decimal.RequireFromString("2.46")) {
		t.Errorf("Expected price 2.46, got %s", inst.Price)
	}
	if !inst.ChangePercent.Equal(decimal.RequireFromString("0.41")) {
		t.Errorf("Expected percent 0.41, got %s", inst.ChangePercent)
	}
	if !inst.LastUpdated.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Expected tick timestamp %v, got %v", epoch.Add(3*time.Second), inst.LastUpdated)
	}
}

func TestEngine_PricesStayPositiveAndWithinBound(t *testing.T) {
	cfg := market.DefaultConfig()
	policy := market.DefaultPolicy()
	e, _ := newEngine(t, cfg, market.NewRealRand())

	for i := 0; i < 500; i++ {
		before := e.Snapshot()
		e.Tick()

		for sym, inst := range e.Snapshot() {
			if !inst.Price.IsPositive() {
				t.Fatalf("%s price dropped to %s", sym, inst.Price)
			}
			if !inst.Price.Equal(inst.Price.Round(2)) {
				t.Fatalf("%s price %s not rounded to 2 places", sym, inst.Price)
			}

			old := before[sym].Price.InexactFloat64()
			pct := math.Abs(inst.ChangePercent.InexactFloat64())
			tolerance := policy.Bound(inst)*50 + 0.005/old*100 + 0.005 + 1e-9
			if pct > tolerance {
				t.Fatalf("%s moved %.4f%%, bound allows %.4f%%", sym, pct, tolerance)
			}
		}
	}
}

func TestEngine_HistoryIsCappedOldestFirst(t *testing.T) {
	e, clock := newEngine(t, market.DefaultConfig(), market.NewRealRand())

	for i := 1; i <= 60; i++ {
		clock.Advance(time.Second)
		e.Tick()
	}

	for sym := range e.Snapshot() {
		points := e.History(sym)
		if len(points) != 50 {
			t.Fatalf("%s: expected 50 points, got %d", sym, len(points))
		}
		// 7 seeded + 60 ticks; the 17 oldest are evicted, leaving ticks 11..60.
		if !points[0].Timestamp.Equal(epoch.Add(11 * time.Second)) {
			t.Errorf("%s: expected oldest point at tick 11, got %v", sym, points[0].Timestamp)
		}
		for i := 1; i < len(points); i++ {
			if !points[i].Timestamp.After(points[i-1].Timestamp) {
				t.Fatalf("%s: history out of order at %d", sym, i)
			}
		}
		last := points[len(points)-1]
		inst, _ := e.Instrument(sym)
		if !last.Value.Equal(inst.Price) {
			t.Errorf("%s: newest point %s does not match price %s", sym, last.Value, inst.Price)
		}
	}
}

func TestEngine_SeedHistory(t *testing.T) {
	e, _ := newEngine(t, market.DefaultConfig(), &testutils.MockRand{ValFloat: 0.5})

	points := e.History("GOLD")
	if len(points) != 7 {
		t.Fatalf("Expected 7 seeded points, got %d", len(points))
	}
	for i, p := range points {
		want := epoch.AddDate(0, 0, -7+i)
		if !p.Timestamp.Equal(want) {
			t.Errorf("Point %d: expected %v, got %v", i, want, p.Timestamp)
		}
		if !p.Value.Equal(decimal.RequireFromString("2045.67")) {
			t.Errorf("Point %d: midpoint draw should keep seed price, got %s", i, p.Value)
		}
	}

	inst, _ := e.Instrument("GOLD")
	if !inst.Change.IsZero() || !inst.ChangePercent.IsZero() {
		t.Errorf("Seeded instrument should have zero change, got %s / %s", inst.Change, inst.ChangePercent)
	}
}

func TestEngine_ByCategory(t *testing.T) {
	e, _ := newEngine(t, market.DefaultConfig(), market.NewRealRand())

	bonds := e.ByCategory(models.Bonds)
	want := []string{"US10Y", "FR10Y", "DE10Y", "EU10Y"}
	if len(bonds) != len(want) {
		t.Fatalf("Expected %d bonds, got %d", len(want), len(bonds))
	}
	for _, sym := range want {
		if _, ok := bonds[sym]; !ok {
			t.Errorf("Missing bond %s", sym)
		}
	}
	for sym, inst := range bonds {
		if inst.Category != models.Bonds {
			t.Errorf("%s has category %s", sym, inst.Category)
		}
	}

	if crypto := e.ByCategory(models.Crypto); len(crypto) != 2 {
		t.Errorf("Expected 2 crypto instruments, got %d", len(crypto))
	}
}

func TestEngine_UnknownSymbols(t *testing.T) {
	e, _ := newEngine(t, market.DefaultConfig(), market.NewRealRand())

	if _, ok := e.Instrument("DOGE"); ok {
		t.Error("Unknown symbol should be absent")
	}

	points := e.History("DOGE")
	if points == nil || len(points) != 0 {
		t.Errorf("Expected empty non-nil history, got %v", points)
	}

	histories := e.HistoryFor("BTC", "DOGE", "ETH")
	if len(histories) != 2 {
		t.Errorf("Expected only known symbols, got %d entries", len(histories))
	}
	if _, ok := histories["DOGE"]; ok {
		t.Error("Unknown symbol should be omitted")
	}
}

func TestEngine_SnapshotsAreCopies(t *testing.T) {
	e, _ := newEngine(t, market.DefaultConfig(), market.NewRealRand())

	before := e.Snapshot()
	history := e.History("BTC")

	before["BTC"] = models.Instrument{Symbol: "BTC"}
	delete(before, "ETH")
	history[0].Value = decimal.Zero

	fresh := e.Snapshot()
	if len(fresh) != 10 {
		t.Errorf("Mutating a snapshot changed the engine: %d instruments", len(fresh))
	}
	if !fresh["BTC"].Price.Equal(decimal.RequireFromString("43250.00")) {
		t.Errorf("Mutating a snapshot changed BTC: %s", fresh["BTC"].Price)
	}
	if e.History("BTC")[0].Value.IsZero() {
		t.Error("Mutating returned history changed the engine")
	}

	old := e.Snapshot()
	e.Tick()
	if !old["BTC"].Price.Equal(decimal.RequireFromString("43250.00")) {
		t.Error("Snapshot taken before a tick must not change")
	}
}

func TestEngine_Subscribers(t *testing.T) {
	e, _ := newEngine(t, market.DefaultConfig(), market.NewRealRand())

	var a, b atomic.Int32
	unsubA := e.Subscribe(func() { a.Add(1) })
	e.Subscribe(func() { b.Add(1) })

	e.Tick()
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("Expected one notification each, got a=%d b=%d", a.Load(), b.Load())
	}

	unsubA()
	unsubA()
	e.Tick()
	if a.Load() != 1 {
		t.Errorf("Unsubscribed listener notified again: %d", a.Load())
	}
	if b.Load() != 2 {
		t.Errorf("Remaining listener expected 2 notifications, got %d", b.Load())
	}
}

func TestEngine_PanickingSubscriberIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	e, err := market.New(market.DefaultConfig(), zap.New(core), market.NewRealRand(), &testutils.MockClock{CurrentTime: epoch})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var healthy atomic.Int32
	e.Subscribe(func() { panic("boom") })
	e.Subscribe(func() { healthy.Add(1) })

	e.Tick()
	e.Tick()

	if healthy.Load() != 2 {
		t.Errorf("Healthy subscriber expected 2 notifications, got %d", healthy.Load())
	}
	if n := logs.FilterMessage("Subscriber panicked").Len(); n != 2 {
		t.Errorf("Expected 2 logged panics, got %d", n)
	}
	if e.Ticks() != 2 {
		t.Errorf("Expected 2 ticks, got %d", e.Ticks())
	}
}

func TestEngine_StartStop(t *testing.T) {
	cfg := market.DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	e, err := market.New(cfg, zap.NewNop(), market.NewRealRand(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var notified atomic.Int32
	e.Subscribe(func() { notified.Add(1) })

	if err := e.Start(testContext(t)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(testContext(t)); !errors.Is(err, market.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for notified.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if notified.Load() < 3 {
		t.Fatalf("Expected at least 3 ticks, got %d", notified.Load())
	}

	e.Stop()
	stoppedAt := notified.Load()
	time.Sleep(30 * time.Millisecond)

	if notified.Load() != stoppedAt {
		t.Errorf("Tick fired after Stop: %d -> %d", stoppedAt, notified.Load())
	}
	if e.Running() {
		t.Error("Engine should not report running after Stop")
	}
	if uint64(stoppedAt) != e.Ticks() {
		t.Errorf("Every tick should notify once: ticks=%d notifications=%d", e.Ticks(), stoppedAt)
	}

	e.Stop()
	if err := e.Start(testContext(t)); err != nil {
		t.Errorf("Restart after Stop failed: %v", err)
	}
	e.Stop()
}

func TestEngine_ConcurrentReadsDuringTicks(t *testing.T) {
	// Run with `go test -race ./...`
	// Tick k is stamped epoch+k s, so a view's timestamps identify its pass.
	e, clock := newEngine(t, market.DefaultConfig(), market.NewRealRand())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, seq := e.SnapshotSeq()
				if len(snap) != 10 {
					t.Errorf("Partial snapshot with %d instruments", len(snap))
					return
				}
				want := epoch.Add(time.Duration(seq) * time.Second)
				for sym, inst := range snap {
					if !inst.LastUpdated.Equal(want) {
						t.Errorf("%s stamped %s in view of tick %d (want %s)", sym, inst.LastUpdated, seq, want)
						return
					}
				}
				e.ByCategory(models.Indices)
				e.HistoryFor("BTC", "GOLD")
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		clock.Advance(time.Second)
		e.Tick()
	}
	close(stop)
	wg.Wait()
}

func TestEngine_SnapshotSeqPairsDataWithTick(t *testing.T) {
	e, clock := newEngine(t, market.DefaultConfig(), &testutils.MockRand{ValFloat: 1})

	snap, seq := e.SnapshotSeq()
	if seq != 0 || !snap["BTC"].Price.Equal(decimal.RequireFromString("43250")) {
		t.Fatalf("Seeded view should be tick 0 at the seed price, got tick %d price %s", seq, snap["BTC"].Price)
	}

	clock.Advance(time.Second)
	e.Tick()

	snap, seq = e.SnapshotSeq()
	if seq != 1 || e.Ticks() != 1 {
		t.Fatalf("Expected tick 1, got SnapshotSeq %d Ticks %d", seq, e.Ticks())
	}
	if !snap["BTC"].Price.Equal(decimal.RequireFromString("43898.75")) {
		t.Errorf("Tick 1 view should carry the moved price, got %s", snap["BTC"].Price)
	}
}

func TestEngine_RestartAfterParentCancel(t *testing.T) {
	cfg := market.DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	e, _ := newEngine(t, cfg, market.NewRealRand())

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for e.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if e.Running() {
		t.Fatal("Loop should exit when the parent ctx is cancelled")
	}

	if err := e.Start(testContext(t)); err != nil {
		t.Fatalf("Restart after parent cancel failed: %v", err)
	}
	if !e.Running() {
		t.Error("Engine should be running after restart")
	}
	e.Stop()
}

func TestEngine_TickAfterStopIsNoop(t *testing.T) {
	e, _ := newEngine(t, market.DefaultConfig(), &testutils.MockRand{ValFloat: 1})

	var notified atomic.Int32
	e.Subscribe(func() { notified.Add(1) })

	e.Tick()
	e.Stop()
	before := e.Snapshot()["BTC"].Price
	e.Tick()

	if notified.Load() != 1 {
		t.Errorf("Expected no notification after Stop, got %d total", notified.Load())
	}
	if e.Ticks() != 1 || !e.Snapshot()["BTC"].Price.Equal(before) {
		t.Errorf("Tick after Stop must not move prices (ticks=%d)", e.Ticks())
	}

	if err := e.Start(testContext(t)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Stop()
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	withInstruments := func(insts ...models.Instrument) market.Config {
		cfg := market.DefaultConfig()
		cfg.Instruments = insts
		return cfg
	}
	valid := models.Instrument{Symbol: "A", Category: models.Indices, Price: decimal.NewFromInt(10)}

	testCases := []struct {
		name string
		cfg  func() market.Config
	}{
		{"no instruments", func() market.Config { return withInstruments() }},
		{"empty symbol", func() market.Config {
			return withInstruments(models.Instrument{Category: models.Indices, Price: decimal.NewFromInt(1)})
		}},
		{"duplicate symbol", func() market.Config { return withInstruments(valid, valid) }},
		{"zero price", func() market.Config {
			return withInstruments(models.Instrument{Symbol: "Z", Category: models.Bonds})
		}},
		{"unknown category", func() market.Config {
			return withInstruments(models.Instrument{Symbol: "Q", Category: models.Category(9), Price: decimal.NewFromInt(1)})
		}},
		{"negative bound", func() market.Config {
			cfg := market.DefaultConfig()
			cfg.Policy.BondBound = -0.01
			return cfg
		}},
		{"zero interval", func() market.Config {
			cfg := market.DefaultConfig()
			cfg.Interval = 0
			return cfg
		}},
		{"seed days beyond cap", func() market.Config {
			cfg := market.DefaultConfig()
			cfg.HistoryCap = 5
			return cfg
		}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := market.New(tt.cfg(), zap.NewNop(), nil, nil)
			if !errors.Is(err, market.ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

// testContext mirrors testing.T.Context (Go 1.24+): a context cancelled when
// the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
