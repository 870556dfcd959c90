package market

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/pkg/models"
)

var (
	ErrInvalidConfig  = errors.New("market: invalid config")
	ErrAlreadyRunning = errors.New("market: engine already running")
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Config describes the seeded instrument table and the tick schedule.
type Config struct {
	Instruments []models.Instrument
	Interval    time.Duration
	HistoryCap  int
	SeedDays    int
	SeedSpread  float64 // total width of the seed history perturbation
	Policy      VolatilityPolicy
}

func DefaultConfig() Config {
	return Config{
		Instruments: DefaultInstruments(),
		Interval:    3 * time.Second,
		HistoryCap:  50,
		SeedDays:    7,
		SeedSpread:  0.05,
		Policy:      DefaultPolicy(),
	}
}

func (c Config) validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("%w: no instruments", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval %s", ErrInvalidConfig, c.Interval)
	}
	if c.HistoryCap < 1 {
		return fmt.Errorf("%w: history cap %d", ErrInvalidConfig, c.HistoryCap)
	}
	if c.SeedDays < 0 || c.SeedDays > c.HistoryCap {
		return fmt.Errorf("%w: %d seed days with history cap %d", ErrInvalidConfig, c.SeedDays, c.HistoryCap)
	}
	if c.SeedSpread < 0 || c.SeedSpread >= 2 {
		return fmt.Errorf("%w: seed spread %v", ErrInvalidConfig, c.SeedSpread)
	}

	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		switch {
		case inst.Symbol == "":
			return fmt.Errorf("%w: instrument with empty symbol", ErrInvalidConfig)
		case seen[inst.Symbol]:
			return fmt.Errorf("%w: duplicate symbol %q", ErrInvalidConfig, inst.Symbol)
		case !inst.Category.Valid():
			return fmt.Errorf("%w: %s has unknown category %d", ErrInvalidConfig, inst.Symbol, int(inst.Category))
		case !inst.Price.IsPositive():
			return fmt.Errorf("%w: %s seed price %s must be positive", ErrInvalidConfig, inst.Symbol, inst.Price)
		}
		seen[inst.Symbol] = true
	}

	return c.Policy.validate()
}

// snapshot is an immutable view published after every pass. Readers copy out of it.
type snapshot struct {
	instruments map[string]models.Instrument
	history     map[string][]models.HistoryPoint
	tick        uint64 // pass that produced this view
}

// Engine simulates a live price feed over a fixed instrument table.
//
// One goroutine (or a caller of Tick) mutates the working table under tickMu
// and publishes a fresh snapshot through an atomic pointer; readers never take
// tickMu and never observe a half-applied pass.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	rand   Rand
	clock  Clock

	tickMu      sync.Mutex
	instruments []models.Instrument
	history     map[string]*ring
	tick        uint64
	stopped     atomic.Bool

	current atomic.Pointer[snapshot]

	subMu       sync.RWMutex
	subscribers map[uuid.UUID]func()

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg, seeds the instrument table and its synthetic history,
// and returns a stopped engine. A nil rnd or clock selects the real one.
func New(cfg Config, logger *zap.Logger, rnd Rand, clock Clock) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rnd == nil {
		rnd = NewRealRand()
	}
	if clock == nil {
		clock = RealClock{}
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		rand:        rnd,
		clock:       clock,
		instruments: make([]models.Instrument, len(cfg.Instruments)),
		history:     make(map[string]*ring, len(cfg.Instruments)),
		subscribers: make(map[uuid.UUID]func()),
	}

	now := clock.Now()
	start := now.AddDate(0, 0, -cfg.SeedDays)
	for i, inst := range cfg.Instruments {
		inst.Change = decimal.Zero
		inst.ChangePercent = decimal.Zero
		inst.LastUpdated = now
		e.instruments[i] = inst

		h := newRing(cfg.HistoryCap)
		for d := 0; d < cfg.SeedDays; d++ {
			variation := (rnd.Float64() - 0.5) * cfg.SeedSpread
			h.push(models.HistoryPoint{
				Timestamp: start.AddDate(0, 0, d),
				Value:     inst.Price.Mul(one.Add(decimal.NewFromFloat(variation))).RoundBank(2),
			})
		}
		e.history[inst.Symbol] = h
	}
	e.publish()

	logger.Info("Market engine seeded",
		zap.Int("instruments", len(e.instruments)),
		zap.Duration("interval", cfg.Interval),
		zap.Int("history_cap", cfg.HistoryCap))

	return e, nil
}

// Start runs one tick immediately and then one every Interval until Stop is
// called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.done != nil {
		select {
		case <-e.done:
			// The parent ctx ended the previous loop
			e.cancel()
		default:
			return ErrAlreadyRunning
		}
	}

	e.stopped.Store(false)
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, e.done)

	e.logger.Info("Market engine started")
	return nil
}

// Stop cancels the tick loop and waits for it to exit. Once Stop returns no
// further tick or notification is produced, and Tick is a no-op until the
// next Start. Calling Stop from a subscriber deadlocks.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.stopped.Store(true)
	e.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("Market engine stopped", zap.Uint64("ticks", e.Ticks()))
}

func (e *Engine) Running() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Ticks reports the number of completed passes.
func (e *Engine) Ticks() uint64 { return e.current.Load().tick }

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			e.Tick()
		}
	}
}

// Tick applies one random move to every instrument, publishes the new
// snapshot, then notifies subscribers. Start drives it on a schedule; tests
// and callers that never Start may drive it by hand. After Stop it does nothing.
func (e *Engine) Tick() {
	e.tickMu.Lock()
	if e.stopped.Load() {
		e.tickMu.Unlock()
		return
	}
	now := e.clock.Now()
	for i := range e.instruments {
		e.step(&e.instruments[i], now)
	}
	e.tick++
	e.publish()
	tick := e.tick
	e.tickMu.Unlock()

	e.logger.Debug("Tick complete", zap.Uint64("tick", tick))
	e.notify()
}

func (e *Engine) step(inst *models.Instrument, now time.Time) {
	bound := e.cfg.Policy.Bound(*inst)
	variation := (e.rand.Float64() - 0.5) * bound

	old := inst.Price
	next := old.Mul(one.Add(decimal.NewFromFloat(variation))).RoundBank(2)

	inst.Price = next
	inst.Change = next.Sub(old)
	inst.ChangePercent = percentChange(inst.Change, old)
	inst.LastUpdated = now

	e.history[inst.Symbol].push(models.HistoryPoint{Timestamp: now, Value: next})
}

// percentChange divides by the pre-move price; a zero base yields 0%.
func percentChange(change, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return change.Div(base).Mul(hundred).RoundBank(2)
}

// publish must be called with tickMu held (or before the engine is shared).
func (e *Engine) publish() {
	s := &snapshot{
		instruments: make(map[string]models.Instrument, len(e.instruments)),
		history:     make(map[string][]models.HistoryPoint, len(e.history)),
		tick:        e.tick,
	}
	for _, inst := range e.instruments {
		s.instruments[inst.Symbol] = inst
	}
	for sym, h := range e.history {
		s.history[sym] = h.points()
	}
	e.current.Store(s)
}

// Subscribe registers fn to run after every completed tick. The returned
// func unregisters it; a notification already in flight may still reach fn.
func (e *Engine) Subscribe(fn func()) (unsubscribe func()) {
	id := uuid.New()

	e.subMu.Lock()
	e.subscribers[id] = fn
	e.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subscribers, id)
			e.subMu.Unlock()
		})
	}
}

func (e *Engine) notify() {
	e.subMu.RLock()
	targets := make(map[uuid.UUID]func(), len(e.subscribers))
	maps.Copy(targets, e.subscribers)
	e.subMu.RUnlock()

	for id, fn := range targets {
		e.deliver(id, fn)
	}
}

func (e *Engine) deliver(id uuid.UUID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Subscriber panicked", zap.String("subscription", id.String()), zap.Any("panic", r))
		}
	}()
	fn()
}

// Snapshot returns a copy of every instrument keyed by symbol.
func (e *Engine) Snapshot() map[string]models.Instrument {
	return maps.Clone(e.current.Load().instruments)
}

// SnapshotSeq is Snapshot paired with the number of the pass that produced it.
func (e *Engine) SnapshotSeq() (map[string]models.Instrument, uint64) {
	s := e.current.Load()
	return maps.Clone(s.instruments), s.tick
}

func (e *Engine) Instrument(symbol string) (models.Instrument, bool) {
	inst, ok := e.current.Load().instruments[symbol]
	return inst, ok
}

func (e *Engine) ByCategory(category models.Category) map[string]models.Instrument {
	out := make(map[string]models.Instrument)
	for sym, inst := range e.current.Load().instruments {
		if inst.Category == category {
			out[sym] = inst
		}
	}
	return out
}

// History returns the oldest-first history of symbol, or an empty slice.
func (e *Engine) History(symbol string) []models.HistoryPoint {
	points, ok := e.current.Load().history[symbol]
	if !ok {
		return []models.HistoryPoint{}
	}
	return slices.Clone(points)
}

// HistoryFor returns histories for the known symbols among symbols.
func (e *Engine) HistoryFor(symbols ...string) map[string][]models.HistoryPoint {
	s := e.current.Load()
	out := make(map[string][]models.HistoryPoint, len(symbols))
	for _, sym := range symbols {
		if points, ok := s.history[sym]; ok {
			out[sym] = slices.Clone(points)
		}
	}
	return out
}
