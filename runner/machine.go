// Package runner drives a schedule through its execution states and fans
// work out across a worker pool.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quartzbi/beacon/alerting"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/executor"
	"github.com/quartzbi/beacon/logger"
	"github.com/quartzbi/beacon/notify"
	"github.com/quartzbi/beacon/report"
	"github.com/quartzbi/beacon/trigger"
)

// graceMessage is logged on the GRACE transition.
const graceMessage = "Alert is in its grace period"

// AlertEvaluator decides whether an alert fired.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, sched *report.Schedule, asUser string) (*alerting.Result, error)
}

// EnvelopeBuilder renders a schedule's output into a notification envelope.
type EnvelopeBuilder interface {
	Build(ctx context.Context, sched *report.Schedule, executionID, asUser string) (*notify.Envelope, error)
}

// EnvelopeSender fans an envelope out to recipients.
type EnvelopeSender interface {
	Send(ctx context.Context, env *notify.Envelope, recipients []report.Recipient) error
}

// Machine executes one schedule per call, dispatching on the schedule's
// rest state. It is safe for concurrent use across distinct schedules; the
// WORKING lease serializes consecutive ticks of the same schedule.
type Machine struct {
	schedules             report.ScheduleStore
	logs                  report.ExecutionLogStore
	evaluator             AlertEvaluator
	builder               EnvelopeBuilder
	sender                EnvelopeSender
	executorPolicies      []string
	defaultWorkingTimeout time.Duration
	now                   func() time.Time
	log                   *zap.SugaredLogger
}

func NewMachine(
	schedules report.ScheduleStore,
	logs report.ExecutionLogStore,
	evaluator AlertEvaluator,
	builder EnvelopeBuilder,
	sender EnvelopeSender,
	executorPolicies []string,
	defaultWorkingTimeout time.Duration,
	log *zap.SugaredLogger,
) *Machine {
	return &Machine{
		schedules:             schedules,
		logs:                  logs,
		evaluator:             evaluator,
		builder:               builder,
		sender:                sender,
		executorPolicies:      executorPolicies,
		defaultWorkingTimeout: defaultWorkingTimeout,
		now:                   time.Now,
		log:                   log,
	}
}

// Run loads the schedule fresh and takes one transition. The returned
// error is the terminal failure of the tick; report.ErrPreviousWorking is
// a non-fatal skip the dispatcher tolerates.
func (m *Machine) Run(ctx context.Context, firing trigger.Firing) error {
	sched, err := m.schedules.FindByID(ctx, firing.ScheduleID)
	if err != nil {
		return errors.Wrapf(err, "loading schedule %d", firing.ScheduleID)
	}

	exec := &execution{
		m:           m,
		sched:       sched,
		executionID: firing.ExecutionID,
		scheduledAt: firing.ScheduledAt,
		startedAt:   m.now(),
		log:         logger.ForExecution(m.log, sched.ID, firing.ExecutionID),
	}

	switch sched.LastState {
	case "", report.StateNoop, report.StateError:
		return exec.initial(ctx)
	case report.StateWorking:
		return exec.working(ctx)
	case report.StateSuccess, report.StateGrace:
		return exec.success(ctx)
	default:
		return errors.Wrapf(report.ErrStateNotFound, "schedule %d in state %q", sched.ID, sched.LastState)
	}
}

// execution carries the per-tick context: one schedule, one execution id,
// and the alert value observed along the way.
type execution struct {
	m            *Machine
	sched        *report.Schedule
	executionID  string
	scheduledAt  time.Time
	startedAt    time.Time
	value        *float64
	valueRowJSON string
	log          *zap.SugaredLogger
}

// initial is the NOOP/ERROR (and never-run) path: take the WORKING lease,
// evaluate, build, deliver.
func (e *execution) initial(ctx context.Context) error {
	if err := e.persist(ctx, report.StateWorking, ""); err != nil {
		return err
	}

	asUser, err := executor.Resolve(e.sched, e.m.executorPolicies, "")
	if err != nil {
		return e.fail(ctx, err)
	}
	e.log.Infow("Running schedule",
		logger.FieldPrincipal, asUser,
		"kind", string(e.sched.Kind),
	)

	if e.sched.IsAlert() {
		result, evalErr := e.m.evaluator.Evaluate(ctx, e.sched, asUser)
		if evalErr != nil {
			return e.fail(ctx, evalErr)
		}
		e.value = result.Value
		e.valueRowJSON = result.ValueRowJSON
		if !result.Triggered {
			e.log.Infow("Alert not triggered")
			return e.persist(ctx, report.StateNoop, "")
		}
		e.log.Infow("Alert triggered")
	}

	env, err := e.m.builder.Build(ctx, e.sched, e.executionID, asUser)
	if err != nil {
		return e.fail(ctx, err)
	}
	if err := e.m.sender.Send(ctx, env, e.sched.Recipients); err != nil {
		return e.fail(ctx, err)
	}

	return e.persist(ctx, report.StateSuccess, "")
}

// working handles a tick that found the previous lease still in place:
// either the worker stalled past its timeout, or it is genuinely running.
func (e *execution) working(ctx context.Context) error {
	stalled, err := e.stalled(ctx)
	if err != nil {
		return err
	}
	if stalled {
		timeoutErr := errors.Wrapf(report.ErrWorkingTimeout, "schedule %d", e.sched.ID)
		if persistErr := e.persist(ctx, report.StateError, report.ErrWorkingTimeout.Error()); persistErr != nil {
			return persistErr
		}
		return timeoutErr
	}

	if persistErr := e.persist(ctx, report.StateWorking, report.ErrPreviousWorking.Error()); persistErr != nil {
		return persistErr
	}
	return errors.Wrapf(report.ErrPreviousWorking, "schedule %d", e.sched.ID)
}

// success handles SUCCESS/GRACE rest states: alerts inside their grace
// window are suppressed, everything else behaves like the initial class.
func (e *execution) success(ctx context.Context) error {
	if e.sched.IsAlert() {
		inGrace, err := e.inGracePeriod(ctx)
		if err != nil {
			return err
		}
		if inGrace {
			e.log.Infow("Suppressing alert inside its grace period")
			return e.persist(ctx, report.StateGrace, graceMessage)
		}
	}
	return e.initial(ctx)
}

// fail records the terminal ERROR, notifies owners unless a previous error
// notification is still within the grace window, and re-raises the
// original failure.
func (e *execution) fail(ctx context.Context, primary error) error {
	e.log.Warnw("Execution failed",
		logger.FieldState, string(report.StateError),
		"error", primary,
	)
	if err := e.persist(ctx, report.StateError, primary.Error()); err != nil {
		return errors.WithSecondaryError(primary, err)
	}

	inGrace, err := e.inErrorGracePeriod(ctx)
	if err != nil {
		return errors.WithSecondaryError(primary, err)
	}
	if inGrace {
		e.log.Infow("Skipping error notification, a previous one is within the grace period")
		return primary
	}

	// The second ERROR write replaces the first: the marker when the owner
	// notification went out, the secondary failure when it did not.
	outcome := report.ErrorNotificationMarker
	if notifyErr := e.notifyOwners(ctx, primary); notifyErr != nil {
		e.log.Warnw("Error notification failed", "error", notifyErr)
		outcome = notifyErr.Error()
	}
	if err := e.persist(ctx, report.StateError, outcome); err != nil {
		return errors.WithSecondaryError(primary, err)
	}
	return primary
}

// notifyOwners emails the schedule's owners about the failure.
func (e *execution) notifyOwners(ctx context.Context, primary error) error {
	var recipients []report.Recipient
	for _, owner := range e.sched.Owners {
		if owner.Email == "" {
			continue
		}
		recipients = append(recipients, report.Recipient{
			Type:       report.RecipientEmail,
			ConfigJSON: fmt.Sprintf(`{"target": %q}`, owner.Email),
		})
	}
	if len(recipients) == 0 {
		e.log.Warnw("No owner has an email address, skipping error notification")
		return nil
	}

	env := &notify.Envelope{
		Name:        fmt.Sprintf("Error occurred for %s: %s", e.sched.Kind, e.sched.Name),
		Description: primary.Error(),
		Header:      notify.HeaderFor(e.sched, e.executionID),
	}
	return e.m.sender.Send(ctx, env, recipients)
}

// persist updates the schedule's rest state and appends the matching log
// entry. The WORKING update clears the previous alert value.
func (e *execution) persist(ctx context.Context, state report.State, message string) error {
	now := e.m.now()
	if err := e.m.schedules.UpdateState(ctx, e.sched.ID, state, e.value, e.valueRowJSON, now); err != nil {
		return err
	}
	e.sched.LastState = state

	entry := &report.ExecutionLogEntry{
		ScheduleID:   e.sched.ID,
		ExecutionID:  e.executionID,
		ScheduledAt:  e.scheduledAt,
		StartedAt:    e.startedAt,
		EndedAt:      now,
		State:        state,
		Value:        e.value,
		ValueRowJSON: e.valueRowJSON,
		ErrorMessage: message,
	}
	return e.m.logs.Append(ctx, entry)
}

// stalled reports whether the previous WORKING lease outlived the
// schedule's working timeout. The anchor is the entry written when the
// lease was taken, not the WORKING entries skip ticks append, so repeated
// skips never push the stall clock forward. A missing lease entry is not
// a stall.
func (e *execution) stalled(ctx context.Context) (bool, error) {
	lastWorking, err := e.m.logs.FindLastEnteredWorking(ctx, e.sched.ID)
	if err != nil {
		return false, err
	}
	if lastWorking == nil || e.sched.LastEvalAt == nil {
		return false, nil
	}
	timeout := e.sched.WorkingTimeout()
	if timeout <= 0 {
		timeout = e.m.defaultWorkingTimeout
	}
	return e.m.now().After(lastWorking.EndedAt.Add(timeout)), nil
}

// inGracePeriod reports whether the last success is recent enough to
// suppress re-notification of a still-firing alert.
func (e *execution) inGracePeriod(ctx context.Context) (bool, error) {
	if e.sched.GracePeriodSeconds <= 0 {
		return false, nil
	}
	lastSuccess, err := e.m.logs.FindLast(ctx, e.sched.ID, report.StateSuccess)
	if err != nil {
		return false, err
	}
	if lastSuccess == nil {
		return false, nil
	}
	return e.m.now().Sub(lastSuccess.EndedAt) < e.sched.GracePeriod(), nil
}

// inErrorGracePeriod reports whether owners were already notified of an
// error recently enough to stay quiet.
func (e *execution) inErrorGracePeriod(ctx context.Context) (bool, error) {
	if e.sched.GracePeriodSeconds <= 0 {
		return false, nil
	}
	lastNotification, err := e.m.logs.FindLastErrorNotification(ctx, e.sched.ID)
	if err != nil {
		return false, err
	}
	if lastNotification == nil {
		return false, nil
	}
	return e.m.now().Sub(lastNotification.EndedAt) < e.sched.GracePeriod(), nil
}
