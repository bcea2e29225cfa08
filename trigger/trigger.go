// Package trigger enumerates schedules due at each tick.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
)

// dedupeHorizon is how long fired (schedule_id, scheduled_at) pairs are
// remembered. Past this window the WORKING lease is the only guard, which
// also covers process restarts.
const dedupeHorizon = 2 * time.Hour

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Firing is one due execution: the correlation tuple handed to the
// dispatch loop.
type Firing struct {
	ScheduleID  int64
	ScheduledAt time.Time
	ExecutionID string
}

// Trigger computes due firings from the schedule store. A schedule is due
// when its cron expression, evaluated in its declared timezone, matches a
// minute boundary at or before now that has not already been fired.
type Trigger struct {
	store report.ScheduleStore

	mu       sync.Mutex
	lastScan time.Time
	fired    map[string]time.Time // "<id>@<unix-minute>" -> fired at
}

// New creates a trigger over the schedule store
func New(store report.ScheduleStore) *Trigger {
	return &Trigger{
		store: store,
		fired: make(map[string]time.Time),
	}
}

// Due returns the firings for all minute boundaries in (lastScan, now].
// Each (schedule_id, scheduled_at) pair is emitted at most once; every
// firing carries a freshly generated execution id.
func (t *Trigger) Due(ctx context.Context, now time.Time) ([]Firing, error) {
	schedules, err := t.store.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	windowStart := t.lastScan
	if windowStart.IsZero() {
		// First scan: only the current minute boundary is in play.
		windowStart = now.Truncate(time.Minute).Add(-time.Second)
	}
	t.lastScan = now
	t.prune(now)

	var firings []Firing
	for _, sched := range schedules {
		matches, err := cronMatches(sched.Crontab, sched.Timezone, windowStart, now)
		if err != nil {
			// A malformed expression should have been rejected at creation
			// time; skip the schedule rather than poisoning the tick.
			continue
		}
		for _, scheduledAt := range matches {
			key := firedKey(sched.ID, scheduledAt)
			if _, done := t.fired[key]; done {
				continue
			}
			t.fired[key] = now
			firings = append(firings, Firing{
				ScheduleID:  sched.ID,
				ScheduledAt: scheduledAt,
				ExecutionID: uuid.New().String(),
			})
		}
	}

	return firings, nil
}

func (t *Trigger) prune(now time.Time) {
	for key, at := range t.fired {
		if now.Sub(at) > dedupeHorizon {
			delete(t.fired, key)
		}
	}
}

func firedKey(scheduleID int64, scheduledAt time.Time) string {
	return fmt.Sprintf("%d@%d", scheduleID, scheduledAt.Unix())
}

// cronMatches returns the minute boundaries in (after, until] matched by
// the expression in the given timezone.
func cronMatches(expr, timezone string, after, until time.Time) ([]time.Time, error) {
	spec := expr
	if timezone != "" {
		spec = "CRON_TZ=" + timezone + " " + expr
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expr)
	}

	var matches []time.Time
	for next := sched.Next(after); !next.After(until); next = sched.Next(next) {
		matches = append(matches, next)
		if len(matches) > 120 {
			// A scan window should never span more firings than two hours
			// of an every-minute schedule.
			break
		}
	}
	return matches, nil
}

// ValidateCrontab checks an expression against the minimum firing interval
// for its schedule kind. Called by the schedule-creation path, never by the
// scan loop. With a minimum above one minute, minute fields that can fire
// closer together than the minimum are rejected.
func ValidateCrontab(expr string, minIntervalMinutes int) error {
	spec := expr
	if _, err := cronParser.Parse(spec); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	if minIntervalMinutes <= 1 {
		return nil
	}

	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return errors.Newf("invalid cron expression %q", expr)
	}
	minute := fields[0]

	if strings.ContainsAny(minute, "*-/") {
		return errors.Newf(
			"cron expression %q fires more often than the %d minute minimum", expr, minIntervalMinutes)
	}
	if strings.Contains(minute, ",") {
		minutes, err := parseMinuteList(minute)
		if err != nil {
			return err
		}
		if gap := smallestGap(minutes); gap < minIntervalMinutes {
			return errors.Newf(
				"cron expression %q fires %d minutes apart, below the %d minute minimum",
				expr, gap, minIntervalMinutes)
		}
	}
	return nil
}

func parseMinuteList(field string) ([]int, error) {
	parts := strings.Split(field, ",")
	minutes := make([]int, 0, len(parts))
	for _, part := range parts {
		var m int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &m); err != nil {
			return nil, errors.Newf("invalid minute field %q", field)
		}
		minutes = append(minutes, m)
	}
	return minutes, nil
}

// smallestGap returns the smallest circular gap (mod 60) between the given
// minute values.
func smallestGap(minutes []int) int {
	if len(minutes) < 2 {
		return 60
	}
	sorted := append([]int(nil), minutes...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	smallest := 60 - sorted[len(sorted)-1] + sorted[0]
	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i] - sorted[i-1]; gap < smallest {
			smallest = gap
		}
	}
	return smallest
}
