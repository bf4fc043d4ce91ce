// Package clock drives the simulated shop date. The date only moves
// when told to; wall-clock time is consulted solely to detect that the
// tool is running on a new real day, which resets the simulation.
package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
)

// DefaultStartDate is where the simulation begins when no date has been
// persisted yet, or after a new-run reset.
var DefaultStartDate = time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC)

type Clock struct {
	repo      store.Repository
	startDate time.Time
}

func New(repo store.Repository, startDate time.Time) *Clock {
	if startDate.IsZero() {
		startDate = DefaultStartDate
	}
	return &Clock{repo: repo, startDate: domain.DateOf(startDate)}
}

// Today returns the current simulated date, initializing the store to
// the start date on first use.
func (c *Clock) Today(ctx context.Context) (time.Time, error) {
	current, err := c.repo.CurrentDate(ctx)
	if errors.Is(err, store.ErrNotFound) {
		if err := c.repo.SetCurrentDate(ctx, c.startDate); err != nil {
			return time.Time{}, fmt.Errorf("initialize simulated date: %w", err)
		}
		return c.startDate, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return domain.DateOf(current), nil
}

// Advance moves the simulated date forward by the given number of days.
func (c *Clock) Advance(ctx context.Context, days int) (time.Time, error) {
	if days < 1 {
		return time.Time{}, fmt.Errorf("%w: days must be at least 1", store.ErrInvalidTransaction)
	}
	today, err := c.Today(ctx)
	if err != nil {
		return time.Time{}, err
	}
	next := today.AddDate(0, 0, days)
	if err := c.repo.SetCurrentDate(ctx, next); err != nil {
		return time.Time{}, err
	}
	return next, nil
}

// Set jumps the simulated date to an explicit day.
func (c *Clock) Set(ctx context.Context, date time.Time) (time.Time, error) {
	day := domain.DateOf(date)
	if err := c.repo.SetCurrentDate(ctx, day); err != nil {
		return time.Time{}, err
	}
	return day, nil
}

// ResetIfNewRun resets the simulation to the start date when the real
// calendar day differs from the last recorded run day. Returns whether
// a reset happened. Call once at startup.
func (c *Clock) ResetIfNewRun(ctx context.Context, realNow time.Time) (bool, error) {
	realToday := domain.DateOf(realNow)

	lastRun, err := c.repo.LastRunDay(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err == nil && domain.DateOf(lastRun).Equal(realToday) {
		return false, nil
	}

	if err := c.repo.SetCurrentDate(ctx, c.startDate); err != nil {
		return false, err
	}
	if err := c.repo.SetLastRunDay(ctx, realToday); err != nil {
		return false, err
	}
	return true, nil
}
