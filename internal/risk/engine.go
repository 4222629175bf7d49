package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-risk-bot/internal/models"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventEntryTriggered  EventType = "entry_triggered"
	EventBreakevenArmed  EventType = "moved_to_breakeven"
	EventTrailingUpdated EventType = "trailing_updated"
	EventTargetHit       EventType = "target_hit"
	EventStopHit         EventType = "stop_hit"
	EventBreakevenExit   EventType = "breakeven_exit"
	EventExpired         EventType = "expired"
)

// Event is a transition produced by a single evaluation.
type Event struct {
	Type EventType
	// Target is the 1-based target index for target_hit.
	Target int
	// Price is the tick price that caused the transition.
	Price decimal.Decimal
	// Level is the new stop for breakeven/trailing, or the exit level.
	Level decimal.Decimal
	// Terminal is set when the event closed the position.
	Terminal bool
}

// Result is the outcome of evaluating one tick.
type Result struct {
	Position Position
	Events   []Event
	// Changed reports whether anything needs persisting.
	Changed bool
}

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// rPrecision is the number of decimal places kept for R values.
const rPrecision = 4

// Engine evaluates price ticks against positions. It holds no state and
// is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine creates an engine with the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the engine's thresholds.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Evaluate applies one tick to pos and returns the next position. pos is
// not modified. Terminal positions are returned unchanged.
func (e *Engine) Evaluate(pos Position, price decimal.Decimal, now time.Time) Result {
	if pos.Close != nil {
		return Result{Position: pos}
	}

	next := pos.clone()
	changed := !pos.CurrentPrice.Valid || !pos.CurrentPrice.Decimal.Equal(price)
	next.CurrentPrice = decimal.NewNullDecimal(price)

	var events []Event

	if next.Trigger == nil {
		if !next.entryReached(price) {
			if e.expired(next, now) {
				next.close(models.StatusExpired, models.OutcomeExpired, decimal.NullDecimal{}, now)
				events = append(events, Event{Type: EventExpired, Price: price, Terminal: true})
			}
			return Result{Position: next, Events: events, Changed: changed || len(events) > 0}
		}
		next.Trigger = &TriggerState{At: now, Highest: price, Lowest: price}
		next.State = next.State.Advance(models.TradeStateActive)
		events = append(events, Event{Type: EventEntryTriggered, Price: price, Level: next.Entry})
	}

	next.updateExtrema(price)

	progress := next.progress(price)
	if next.Protection == nil && progress.GreaterThanOrEqual(e.policy.BreakevenProgress) {
		next.Protection = &ProtectionState{Stop: next.Entry}
		next.State = next.State.Advance(models.TradeStatePhase1)
		events = append(events, Event{Type: EventBreakevenArmed, Price: price, Level: next.Entry})
	}
	if next.Protection != nil && progress.GreaterThanOrEqual(e.policy.TrailingProgress) {
		gap := next.tp1Distance().Mul(e.policy.TrailingDistance)
		candidate := price.Sub(gap)
		if next.Direction == models.DirectionShort {
			candidate = price.Add(gap)
		}
		if next.tighter(candidate, next.Protection.Stop) {
			next.Protection.Stop = candidate
			next.State = next.State.Advance(models.TradeStatePhase2)
			events = append(events, Event{Type: EventTrailingUpdated, Price: price, Level: candidate})
		}
	}

	targets := e.targets(next)
	for next.Legs.Closed < len(targets) {
		idx := next.Legs.Closed
		level := targets[idx]
		if !next.targetReached(level, price) {
			break
		}
		final := idx == len(targets)-1
		weight := e.legWeight(idx, len(targets))
		if final {
			weight = one.Sub(e.closedWeight(idx, len(targets)))
		}
		pnl := next.RMultiple(level).Mul(weight).Round(rPrecision)
		switch idx {
		case 0:
			next.Legs.TP1PnL = pnl
		case 1:
			next.Legs.TP2PnL = pnl
		default:
			next.Legs.RunnerPnL = pnl
		}
		next.Legs.Closed++
		events = append(events, Event{Type: EventTargetHit, Target: idx + 1, Price: price, Level: level, Terminal: final})
		if final {
			next.close(models.StatusWon, models.TargetOutcome(idx+1), decimal.NewNullDecimal(level), now)
			return Result{Position: next, Events: events, Changed: true}
		}
		next.State = next.State.Advance(models.TradeStatePhase3)
	}

	stop := next.EffectiveStop()
	if next.stopCrossed(stop, price) {
		remaining := one.Sub(e.closedWeight(next.Legs.Closed, len(targets)))
		next.Legs.RunnerPnL = next.RMultiple(stop).Mul(remaining).Round(rPrecision)
		exit := decimal.NewNullDecimal(stop)
		switch {
		case next.Legs.Closed > 0:
			next.close(models.StatusWon, models.TargetOutcome(next.Legs.Closed), exit, now)
			events = append(events, Event{Type: EventStopHit, Price: price, Level: stop, Terminal: true})
		case next.Protection != nil:
			next.close(models.StatusBreakeven, models.OutcomeBreakeven, exit, now)
			events = append(events, Event{Type: EventBreakevenExit, Price: price, Level: stop, Terminal: true})
		default:
			next.close(models.StatusLost, models.OutcomeSLHit, exit, now)
			events = append(events, Event{Type: EventStopHit, Price: price, Level: stop, Terminal: true})
		}
	}

	return Result{Position: next, Events: events, Changed: changed || len(events) > 0}
}

// Close force-closes pos at exit, as an operator override does. The
// unrealized remainder of a triggered position is booked as the runner leg.
func (e *Engine) Close(pos Position, status models.SignalStatus, outcome models.Outcome, exit decimal.NullDecimal, now time.Time) Position {
	if pos.Close != nil {
		return pos
	}
	next := pos.clone()
	if next.Trigger != nil && exit.Valid {
		remaining := one.Sub(e.closedWeight(next.Legs.Closed, len(e.targets(next))))
		next.Legs.RunnerPnL = next.RMultiple(exit.Decimal).Mul(remaining).Round(rPrecision)
	}
	next.close(status, outcome, exit, now)
	return next
}

// targets returns the levels the engine closes legs at: all defined targets
// in scale-out mode, TP1 only otherwise.
func (e *Engine) targets(pos Position) []decimal.Decimal {
	if !e.policy.ScaleOut && len(pos.Targets) > 1 {
		return pos.Targets[:1]
	}
	return pos.Targets
}

// Expire closes a pending position that outlived the entry expiry. It is
// used when no price is available for the symbol.
func (e *Engine) Expire(pos Position, now time.Time) Result {
	if pos.Close != nil || pos.Trigger != nil || !e.expired(pos, now) {
		return Result{Position: pos}
	}
	next := pos.clone()
	next.close(models.StatusExpired, models.OutcomeExpired, decimal.NullDecimal{}, now)
	return Result{
		Position: next,
		Events:   []Event{{Type: EventExpired, Terminal: true}},
		Changed:  true,
	}
}

func (e *Engine) expired(pos Position, now time.Time) bool {
	return e.policy.EntryExpiry > 0 && !pos.CreatedAt.IsZero() && now.Sub(pos.CreatedAt) >= e.policy.EntryExpiry
}

// legWeight is the fraction of the position closed at a non-final target.
// Missing weights split the remainder evenly across the remaining targets.
func (e *Engine) legWeight(idx, targets int) decimal.Decimal {
	if idx < len(e.policy.PartialWeights) {
		return e.policy.PartialWeights[idx]
	}
	rest := one.Sub(e.closedWeight(idx, targets))
	return rest.Div(decimal.NewFromInt(int64(targets - idx)))
}

// closedWeight is the fraction already closed by the first n target legs.
func (e *Engine) closedWeight(n, targets int) decimal.Decimal {
	sum := zero
	for i := 0; i < n && i < targets-1; i++ {
		sum = sum.Add(e.legWeight(i, targets))
	}
	return sum
}

// EffectiveStop is the trailing stop once armed, otherwise the stop loss.
func (p Position) EffectiveStop() decimal.Decimal {
	if p.Protection != nil {
		return p.Protection.Stop
	}
	return p.Stop
}

// Risk is the entry-to-stop distance, one R.
func (p Position) Risk() decimal.Decimal {
	return p.Entry.Sub(p.Stop).Abs()
}

func (p Position) tp1Distance() decimal.Decimal {
	if len(p.Targets) == 0 {
		return zero
	}
	return p.Targets[0].Sub(p.Entry).Abs()
}

// favorable is the signed distance from entry in the trade's direction.
func (p Position) favorable(price decimal.Decimal) decimal.Decimal {
	if p.Direction == models.DirectionShort {
		return p.Entry.Sub(price)
	}
	return price.Sub(p.Entry)
}

func (p Position) progress(price decimal.Decimal) decimal.Decimal {
	d := p.tp1Distance()
	if d.IsZero() {
		return zero
	}
	return p.favorable(price).Div(d)
}

// RMultiple is the signed result of exiting at level, in R.
func (p Position) RMultiple(level decimal.Decimal) decimal.Decimal {
	r := p.Risk()
	if r.IsZero() {
		return zero
	}
	return p.favorable(level).Div(r)
}

func (p Position) entryReached(price decimal.Decimal) bool {
	if p.Direction == models.DirectionShort {
		return price.GreaterThanOrEqual(p.Entry)
	}
	return price.LessThanOrEqual(p.Entry)
}

func (p Position) targetReached(level, price decimal.Decimal) bool {
	if p.Direction == models.DirectionShort {
		return price.LessThanOrEqual(level)
	}
	return price.GreaterThanOrEqual(level)
}

func (p Position) stopCrossed(stop, price decimal.Decimal) bool {
	if p.Direction == models.DirectionShort {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}

// tighter reports whether candidate protects more than current.
func (p Position) tighter(candidate, current decimal.Decimal) bool {
	if p.Direction == models.DirectionShort {
		return candidate.LessThan(current)
	}
	return candidate.GreaterThan(current)
}

func (p *Position) updateExtrema(price decimal.Decimal) {
	t := p.Trigger
	if price.GreaterThan(t.Highest) {
		t.Highest = price
	}
	if price.LessThan(t.Lowest) {
		t.Lowest = price
	}

	r := p.Risk()
	if r.IsZero() {
		return
	}
	up := t.Highest.Sub(p.Entry).Div(r)
	down := p.Entry.Sub(t.Lowest).Div(r)
	mfe, mae := up, down
	if p.Direction == models.DirectionShort {
		mfe, mae = down, up
	}
	t.MFE = decimal.Max(t.MFE, mfe.Round(rPrecision), zero)
	t.MAE = decimal.Max(t.MAE, mae.Round(rPrecision), zero)
}

func (p *Position) close(status models.SignalStatus, outcome models.Outcome, exit decimal.NullDecimal, now time.Time) {
	cl := &CloseState{
		Status:    status,
		Outcome:   outcome,
		ExitPrice: exit,
		At:        now,
	}
	if p.Trigger != nil {
		cl.FinalR = decimal.NewNullDecimal(p.RealizedR())
	}
	p.Close = cl
	p.State = models.TradeStateClosed
}
