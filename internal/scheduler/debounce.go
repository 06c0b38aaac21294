package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the debouncer's externally visible state.
type State int

const (
	Idle State = iota
	Pending
	Suppressed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

const (
	DefaultFillDelay    = 300 * time.Millisecond
	DefaultFillCooldown = 3 * time.Second
)

// action is what the driver must do after feeding the machine an event.
type action struct {
	// arm schedules the timer after wait, replacing any armed timer.
	arm  bool
	wait time.Duration
	// disarm cancels the armed timer.
	disarm bool
	// run means the fill must be invoked now.
	run      bool
	decision string
}

// machine is the pure fill scheduling state machine. It owns no timers; the
// caller applies the returned action.
type machine struct {
	delay    time.Duration
	cooldown time.Duration

	state    State
	dragging bool
	running  bool
	lastFill time.Time
	// generation identifies the armed timer so stale expiries are ignored.
	generation uint64
}

func newMachine(delay, cooldown time.Duration) machine {
	return machine{delay: delay, cooldown: cooldown}
}

// wait returns how long a fill requested at now must wait: at least the
// debounce delay, and long enough to clear the cooldown since the last fill.
func (m *machine) wait(now time.Time) time.Duration {
	wait := m.delay
	if m.lastFill.IsZero() {
		return wait
	}
	if remaining := m.lastFill.Add(m.cooldown).Sub(now); remaining > wait {
		wait = remaining
	}
	return wait
}

func (m *machine) arm(now time.Time, decision string) action {
	m.state = Pending
	m.generation++
	return action{arm: true, wait: m.wait(now), decision: decision}
}

func (m *machine) request(now time.Time) action {
	if m.dragging {
		m.state = Suppressed
		return action{decision: "suppressed"}
	}
	if m.state == Pending {
		return m.arm(now, "debounced")
	}
	return m.arm(now, "armed")
}

// tick is a low-priority request: it never pushes back a pending fill.
func (m *machine) tick(now time.Time) action {
	if m.dragging {
		m.state = Suppressed
		return action{decision: "suppressed"}
	}
	if m.state == Pending {
		return action{decision: "already_pending"}
	}
	return m.arm(now, "tick_armed")
}

func (m *machine) dragStart() action {
	m.dragging = true
	wasPending := m.state == Pending
	m.state = Suppressed
	if wasPending {
		m.generation++
		return action{disarm: true, decision: "pending_dropped"}
	}
	return action{decision: "suppressed"}
}

// dragEnd lifts suppression and issues exactly one fresh request.
func (m *machine) dragEnd(now time.Time) action {
	if !m.dragging {
		return m.request(now)
	}
	m.dragging = false
	m.state = Idle
	return m.arm(now, "drag_ended")
}

func (m *machine) expire(now time.Time, generation uint64) action {
	if m.state != Pending || generation != m.generation {
		return action{decision: "stale_timer"}
	}
	if m.running {
		m.generation++
		return action{arm: true, wait: m.delay, decision: "overlap_deferred"}
	}
	if !m.lastFill.IsZero() {
		if remaining := m.lastFill.Add(m.cooldown).Sub(now); remaining > 0 {
			m.generation++
			return action{arm: true, wait: remaining, decision: "cooldown_deferred"}
		}
	}
	m.state = Idle
	m.running = true
	return action{run: true, decision: "fill"}
}

func (m *machine) done(now time.Time) {
	m.running = false
	m.lastFill = now
}

// DebounceConfig tunes a Debouncer.
type DebounceConfig struct {
	Delay    time.Duration
	Cooldown time.Duration
	Clock    clockwork.Clock
}

// Debouncer decides when the fill routine runs. Bursts of requests collapse
// into one run, runs are spaced by the cooldown, overlapping runs are
// deferred, and requests are dropped while a drag gesture is in progress.
type Debouncer struct {
	clock  clockwork.Clock
	fill   func(ctx context.Context)
	logger zerolog.Logger

	mu      sync.Mutex
	m       machine
	timer   clockwork.Timer
	stopped bool
}

func NewDebouncer(cfg DebounceConfig, fill func(ctx context.Context)) *Debouncer {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultFillDelay
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = DefaultFillCooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Debouncer{
		clock:  cfg.Clock,
		fill:   fill,
		logger: log.With().Str("component", "fill_debouncer").Logger(),
		m:      newMachine(cfg.Delay, cfg.Cooldown),
	}
}

// Request asks for a fill on behalf of reason.
func (d *Debouncer) Request(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.apply(d.m.request(d.clock.Now()), reason)
}

// Tick is the periodic safety-net request.
func (d *Debouncer) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.apply(d.m.tick(d.clock.Now()), "tick")
}

func (d *Debouncer) DragStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.apply(d.m.dragStart(), "drag_start")
}

func (d *Debouncer) DragEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.apply(d.m.dragEnd(d.clock.Now()), "drag_end")
}

func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.m.state
}

func (d *Debouncer) Dragging() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.m.dragging
}

// Stop cancels any armed timer. Later events are ignored; a fill already
// running is allowed to finish.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// apply must be called with d.mu held.
func (d *Debouncer) apply(act action, reason string) {
	d.logger.Debug().
		Str("reason", reason).
		Str("state", d.m.state.String()).
		Dur("wait", act.wait).
		Str("decision", act.decision).
		Msg("Fill scheduling event")

	if act.disarm && d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if !act.arm {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	generation := d.m.generation
	d.timer = d.clock.AfterFunc(act.wait, func() { d.expire(generation) })
}

func (d *Debouncer) expire(generation uint64) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	act := d.m.expire(d.clock.Now(), generation)
	if act.run {
		d.timer = nil
	}
	d.apply(act, "timer")
	d.mu.Unlock()

	if act.run {
		d.run()
	}
}

func (d *Debouncer) run() {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error().Interface("panic", recovered).Msg("Fill panicked")
		}
		d.mu.Lock()
		d.m.done(d.clock.Now())
		d.mu.Unlock()
	}()
	d.fill(d.logger.WithContext(context.Background()))
}
