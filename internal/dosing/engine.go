// Package dosing reconciles recurring dosing protocols against logged intakes
// and schedules titration regimens.
//
// Every Engine method is a deterministic function of its arguments, the
// engine's reference zone, and a single read of its Clock. An Engine holds no
// mutable state and is safe for concurrent use.
package dosing

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimezone is the reference zone used when none is configured.
const DefaultTimezone = "America/Sao_Paulo"

// UnknownFrequencyPolicy decides whether a protocol with an unrecognized
// frequency kind is due.
type UnknownFrequencyPolicy int

const (
	// FailOpen treats unrecognized rules as due every day.
	FailOpen UnknownFrequencyPolicy = iota
	// FailClosed treats unrecognized rules as never due.
	FailClosed
)

// ParseUnknownFrequencyPolicy maps the configuration values "due" and
// "not_due" to a policy.
func ParseUnknownFrequencyPolicy(s string) (UnknownFrequencyPolicy, bool) {
	switch s {
	case "", "due":
		return FailOpen, true
	case "not_due":
		return FailClosed, true
	}
	return FailOpen, false
}

// Engine evaluates protocols against intake logs.
type Engine struct {
	clock            Clock
	loc              *time.Location
	unknownPolicy    UnknownFrequencyPolicy
	recurrenceTotals bool
	logger           zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the source of "now".
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLocation sets the reference civil time zone.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithUnknownFrequencyPolicy sets the fallback for unrecognized rules.
func WithUnknownFrequencyPolicy(p UnknownFrequencyPolicy) Option {
	return func(e *Engine) { e.unknownPolicy = p }
}

// WithRecurrenceAwareTotals makes Aggregate apply each protocol's recurrence
// rule when counting expected doses. Off by default, which counts every
// schedule entry of every active protocol on every day.
func WithRecurrenceAwareTotals(on bool) Option {
	return func(e *Engine) { e.recurrenceTotals = on }
}

// WithLogger sets the logger used to report unrecognized frequency rules.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New returns an Engine. Without options it uses the system clock and
// DefaultTimezone, falling back to UTC when the zone database is missing.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:  SystemClock{},
		logger: zerolog.Nop(),
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		e.loc = loc
	} else {
		e.loc = time.UTC
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the reference zone.
func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the current instant according to the engine clock.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Today returns the current civil date in the reference zone.
func (e *Engine) Today() CivilDate { return DateOf(e.clock.Now(), e.loc) }

// LogsOn returns the logs whose TakenAt falls on d in loc, in input order.
func LogsOn(d CivilDate, logs []IntakeLog, loc *time.Location) []IntakeLog {
	var out []IntakeLog
	for _, l := range logs {
		if DateOf(l.TakenAt, loc).Equal(d) {
			out = append(out, l)
		}
	}
	return out
}
