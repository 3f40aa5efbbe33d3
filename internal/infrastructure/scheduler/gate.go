package scheduler

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GateConfig is the intended time of day for the daily billing pass
type GateConfig struct {
	Hour     int
	Minute   int
	Timezone string
}

// Validate checks the hour and minute ranges
func (c GateConfig) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("%w: hour must be 0-23, got %d", ErrInvalidConfig, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%w: minute must be 0-59, got %d", ErrInvalidConfig, c.Minute)
	}
	return nil
}

// ScheduleGate answers whether a tick falls on the intended billing minute.
// It fails closed: a timezone that did not load, a zero clock reading or a
// conversion failure all answer false.
type ScheduleGate struct {
	hour     int
	minute   int
	location *time.Location
	loadErr  error
	logger   *zap.Logger
}

// NewScheduleGate creates a gate. A timezone that fails to load is not an
// error here; the gate stays closed and logs on every check instead.
func NewScheduleGate(cfg GateConfig, logger *zap.Logger) (*ScheduleGate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &ScheduleGate{hour: cfg.Hour, minute: cfg.Minute, logger: logger}
	g.location, g.loadErr = time.LoadLocation(cfg.Timezone)
	if g.loadErr != nil {
		g.location = nil
		logger.Error("Schedule gate timezone failed to load, gate will stay closed",
			zap.String("timezone", cfg.Timezone),
			zap.Error(g.loadErr))
	}
	return g, nil
}

// ShouldRun reports whether now matches the intended hour and minute in the
// gate's timezone.
func (g *ScheduleGate) ShouldRun(now time.Time) (run bool) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Schedule gate failed to convert time", zap.Any("panic", r))
			run = false
		}
	}()

	if g.location == nil {
		g.logger.Warn("Schedule gate closed: timezone unavailable", zap.Error(g.loadErr))
		return false
	}
	if now.IsZero() {
		g.logger.Warn("Schedule gate closed: clock returned zero time")
		return false
	}

	local := now.In(g.location)
	return local.Hour() == g.hour && local.Minute() == g.minute
}

// Location returns the gate's timezone, or nil when it failed to load
func (g *ScheduleGate) Location() *time.Location {
	return g.location
}

// NextMatch returns the next instant strictly after now at which the gate opens
func (g *ScheduleGate) NextMatch(now time.Time) (time.Time, bool) {
	if g.location == nil || now.IsZero() {
		return time.Time{}, false
	}
	local := now.In(g.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), g.hour, g.minute, 0, 0, g.location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}
