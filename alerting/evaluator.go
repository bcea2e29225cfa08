// Package alerting evaluates an alert schedule's query against its
// validator and decides whether the alert fired.
package alerting

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/report"
	"github.com/quartzbi/beacon/retry"
)

// alertRowLimit caps the result set before execution. An alert may return
// at most one row with one value column, so two rows is enough to detect
// a violation without pulling the full result.
const alertRowLimit = 2

// Result is the outcome of one alert evaluation.
// Value is set whenever the observed cell coerces to a float. ValueRowJSON
// carries the raw row for NOT NULL validators, where the observed value may
// not be numeric.
type Result struct {
	Triggered    bool
	Value        *float64
	ValueRowJSON string
}

// Evaluator runs alert queries through the retry harness and classifies
// the result with the schedule's validator.
type Evaluator struct {
	engine        query.Engine
	mutateQuery   bool
	maxTries      int
	queryTimeout  time.Duration
	retryInterval time.Duration
	log           *zap.SugaredLogger
}

func NewEvaluator(engine query.Engine, cfg *config.Config, log *zap.SugaredLogger) *Evaluator {
	return &Evaluator{
		engine:        engine,
		mutateQuery:   cfg.Alerts.MutateQuery,
		maxTries:      cfg.Alerts.QueryMaxTries,
		queryTimeout:  time.Duration(cfg.Alerts.QueryTimeoutSeconds) * time.Second,
		retryInterval: time.Second,
		log:           log,
	}
}

// Evaluate executes the alert's SQL as the resolved principal and returns
// whether the validator triggered. Shape violations (multiple rows,
// multiple columns, non-numeric cell under an operator validator) are
// returned as non-retryable errors.
func (e *Evaluator) Evaluate(ctx context.Context, sched *report.Schedule, asUser string) (*Result, error) {
	if sched.Validator == nil {
		return nil, errors.Wrapf(report.ErrValidatorConfig, "schedule %d has no validator", sched.ID)
	}

	sqlText := e.engine.ApplyLimit(sched.SQL, alertRowLimit)
	if e.mutateQuery {
		mutated, err := e.engine.Mutate(ctx, sqlText)
		if err != nil {
			return nil, errors.Wrap(err, "mutating alert query")
		}
		sqlText = mutated
	}

	frame, err := e.run(ctx, sched, sqlText, asUser)
	if err != nil {
		return nil, err
	}

	return e.classify(sched, frame)
}

// run submits the statement through the retry harness. Timeouts loop at
// most once; other engine failures loop up to the schedule's bound.
func (e *Evaluator) run(ctx context.Context, sched *report.Schedule, sqlText, asUser string) (*query.Frame, error) {
	maxTries := sched.QueryMaxTries
	if maxTries < 1 {
		maxTries = e.maxTries
	}

	timeouts := 0
	classify := func(err error) bool {
		if errors.Is(err, report.ErrQueryTimeout) {
			timeouts++
			return timeouts <= 1
		}
		return errors.Is(err, report.ErrQuery)
	}

	var frame *query.Frame
	err := retry.Do(ctx, func() error {
		var runErr error
		frame, runErr = e.engine.Run(ctx, sqlText, e.queryTimeout, asUser)
		return runErr
	}, classify, retry.Options{
		MaxTries: maxTries,
		Interval: e.retryInterval,
		Log:      e.log,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "alert query for schedule %d", sched.ID)
	}
	return frame, nil
}

func (e *Evaluator) classify(sched *report.Schedule, frame *query.Frame) (*Result, error) {
	validator := sched.Validator

	if frame.Empty() {
		switch validator.Type {
		case report.ValidatorNotNull:
			return &Result{Triggered: false}, nil
		case report.ValidatorOperator:
			// An empty result observes 0.0 and never triggers
			zero := 0.0
			return &Result{Triggered: false, Value: &zero}, nil
		default:
			return nil, errors.Wrapf(report.ErrValidatorConfig, "unknown validator type %q", validator.Type)
		}
	}

	if len(frame.Rows) > 1 {
		return nil, errors.Wrapf(report.ErrMultipleRows, "got %d rows", len(frame.Rows))
	}
	row := frame.Rows[0]
	if len(row) > 1 {
		return nil, errors.Wrapf(report.ErrMultipleColumns, "got %d columns", len(row))
	}
	if len(row) == 0 {
		return &Result{Triggered: false}, nil
	}
	cell := row[0]

	switch validator.Type {
	case report.ValidatorNotNull:
		res := &Result{Triggered: cellIsNotNull(cell)}
		if value, ok := coerceFloat(cell); ok {
			res.Value = &value
		}
		rowJSON, err := json.Marshal(map[string]any{columnName(frame): cell})
		if err == nil {
			res.ValueRowJSON = string(rowJSON)
		}
		return res, nil

	case report.ValidatorOperator:
		if cell == nil {
			// A null cell behaves like an empty result
			zero := 0.0
			return &Result{Triggered: false, Value: &zero}, nil
		}
		value, ok := coerceFloat(cell)
		if !ok || math.IsNaN(value) {
			return nil, errors.Wrapf(report.ErrInvalidType, "cell %v is not a number", cell)
		}
		triggered, err := applyOperator(validator.Op, value, validator.Threshold)
		if err != nil {
			return nil, err
		}
		return &Result{Triggered: triggered, Value: &value}, nil

	default:
		return nil, errors.Wrapf(report.ErrValidatorConfig, "unknown validator type %q", validator.Type)
	}
}

func columnName(frame *query.Frame) string {
	if len(frame.Columns) > 0 {
		return frame.Columns[0]
	}
	return "value"
}

// cellIsNotNull implements the NOT NULL trigger rule: anything other than
// null, zero, and NaN counts as present.
func cellIsNotNull(cell any) bool {
	if cell == nil {
		return false
	}
	if value, ok := coerceFloat(cell); ok {
		return value != 0 && !math.IsNaN(value)
	}
	return true
}

func coerceFloat(cell any) (float64, bool) {
	switch v := cell.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func applyOperator(op string, value, threshold float64) (bool, error) {
	switch op {
	case "<":
		return value < threshold, nil
	case "<=":
		return value <= threshold, nil
	case ">":
		return value > threshold, nil
	case ">=":
		return value >= threshold, nil
	case "==":
		return value == threshold, nil
	case "!=":
		return value != threshold, nil
	default:
		return false, errors.Wrapf(report.ErrValidatorConfig, "unknown operator %q", op)
	}
}
