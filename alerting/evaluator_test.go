package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quartzbi/beacon/config"
	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/query"
	"github.com/quartzbi/beacon/report"
)

// fakeEngine scripts query results per call and records the SQL it saw.
type fakeEngine struct {
	frames   []*query.Frame
	errs     []error
	calls    int
	lastSQL  []string
	mutated  bool
}

func (f *fakeEngine) ApplyLimit(sqlText string, limit int) string {
	return sqlText + " LIMIT 2"
}

func (f *fakeEngine) Mutate(ctx context.Context, sqlText string) (string, error) {
	f.mutated = true
	return sqlText + " -- mutated", nil
}

func (f *fakeEngine) Run(ctx context.Context, sqlText string, deadline time.Duration, asUser string) (*query.Frame, error) {
	f.lastSQL = append(f.lastSQL, sqlText)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.frames) {
		return f.frames[i], nil
	}
	return &query.Frame{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Alerts: config.AlertsConfig{
			QueryMaxTries:       3,
			QueryTimeoutSeconds: 30,
		},
	}
}

func alertSchedule(validator report.ValidatorConfig) *report.Schedule {
	return &report.Schedule{
		ID:        1,
		Name:      "cpu alert",
		Kind:      report.KindAlert,
		SQL:       "SELECT value FROM metrics",
		Validator: &validator,
	}
}

func newTestEvaluator(engine query.Engine, cfg *config.Config) *Evaluator {
	eval := NewEvaluator(engine, cfg, zap.NewNop().Sugar())
	eval.retryInterval = time.Millisecond
	return eval
}

func TestEmptyResultOperatorDoesNotFire(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{}}}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorOperator, Op: "<", Threshold: 0.75})
	sched.SQL = "SELECT 1 WHERE 1=0"

	res, err := eval.Evaluate(context.Background(), sched, "admin")
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	require.NotNil(t, res.Value)
	assert.Equal(t, 0.0, *res.Value)
}

func TestNullCellOperatorDoesNotFire(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{
		Columns: []string{"metric"},
		Rows:    [][]any{{nil}},
	}}}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorOperator, Op: ">", Threshold: 0})
	res, err := eval.Evaluate(context.Background(), sched, "admin")
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	require.NotNil(t, res.Value)
	assert.Equal(t, 0.0, *res.Value)
}

func TestEmptyResultOperatorAboveThreshold(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{}}}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorOperator, Op: ">", Threshold: 0.75})

	res, err := eval.Evaluate(context.Background(), sched, "admin")
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	require.NotNil(t, res.Value)
	assert.Equal(t, 0.0, *res.Value)
}

func TestEmptyResultNotNullDoesNotFire(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{}}}
	eval := newTestEvaluator(engine, testConfig())

	res, err := eval.Evaluate(context.Background(), alertSchedule(report.ValidatorConfig{Type: report.ValidatorNotNull}), "admin")
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.Nil(t, res.Value)
}

func TestMultipleRowsRaises(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{
		Columns: []string{"v"},
		Rows:    [][]any{{1.0}, {2.0}},
	}}}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorOperator, Op: ">", Threshold: 0})
	sched.SQL = "SELECT 1 UNION ALL SELECT 2"

	_, err := eval.Evaluate(context.Background(), sched, "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrMultipleRows))
	assert.Equal(t, 1, engine.calls)
}

func TestMultipleColumnsRaises(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{1.0, 2.0}},
	}}}
	eval := newTestEvaluator(engine, testConfig())

	_, err := eval.Evaluate(context.Background(), alertSchedule(report.ValidatorConfig{Type: report.ValidatorNotNull}), "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrMultipleColumns))
}

func TestNotNullTriggerRule(t *testing.T) {
	cases := []struct {
		name      string
		cell      any
		triggered bool
	}{
		{"nil cell", nil, false},
		{"zero", 0.0, false},
		{"zero int", int64(0), false},
		{"nonzero", 42.0, true},
		{"negative", -1.0, true},
		{"string", "warning", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{frames: []*query.Frame{{
				Columns: []string{"v"},
				Rows:    [][]any{{tc.cell}},
			}}}
			eval := newTestEvaluator(engine, testConfig())

			res, err := eval.Evaluate(context.Background(), alertSchedule(report.ValidatorConfig{Type: report.ValidatorNotNull}), "admin")
			require.NoError(t, err)
			assert.Equal(t, tc.triggered, res.Triggered)
			assert.NotEmpty(t, res.ValueRowJSON)
		})
	}
}

func TestOperatorCoercion(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{
		Columns: []string{"v"},
		Rows:    [][]any{{"91.5"}},
	}}}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorOperator, Op: ">=", Threshold: 90})
	res, err := eval.Evaluate(context.Background(), sched, "admin")
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	require.NotNil(t, res.Value)
	assert.Equal(t, 91.5, *res.Value)
}

func TestOperatorInvalidTypeRaises(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{
		Columns: []string{"v"},
		Rows:    [][]any{{"not a number"}},
	}}}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorOperator, Op: ">", Threshold: 0})
	_, err := eval.Evaluate(context.Background(), sched, "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrInvalidType))
}

func TestQueryErrorRetriedUpToBound(t *testing.T) {
	queryErr := errors.Wrap(report.ErrQuery, "connection reset")
	engine := &fakeEngine{
		errs:   []error{queryErr, queryErr, nil},
		frames: []*query.Frame{nil, nil, {Columns: []string{"v"}, Rows: [][]any{{5.0}}}},
	}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorOperator, Op: ">", Threshold: 1})
	sched.QueryMaxTries = 3

	res, err := eval.Evaluate(context.Background(), sched, "admin")
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, 3, engine.calls)
}

func TestQueryTimeoutRetriedOnce(t *testing.T) {
	timeoutErr := errors.Wrap(report.ErrQueryTimeout, "soft deadline")
	engine := &fakeEngine{errs: []error{timeoutErr, timeoutErr, timeoutErr}}
	eval := newTestEvaluator(engine, testConfig())

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorNotNull})
	sched.QueryMaxTries = 5

	_, err := eval.Evaluate(context.Background(), sched, "admin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrQueryTimeout))
	assert.Equal(t, 2, engine.calls)
}

func TestMutatorToggle(t *testing.T) {
	engine := &fakeEngine{frames: []*query.Frame{{}}}
	cfg := testConfig()
	cfg.Alerts.MutateQuery = false
	eval := newTestEvaluator(engine, cfg)

	sched := alertSchedule(report.ValidatorConfig{Type: report.ValidatorNotNull})
	_, err := eval.Evaluate(context.Background(), sched, "admin")
	require.NoError(t, err)
	assert.False(t, engine.mutated)
	// Exactly the limited statement reaches the engine
	assert.Equal(t, "SELECT value FROM metrics LIMIT 2", engine.lastSQL[0])

	engine2 := &fakeEngine{frames: []*query.Frame{{}}}
	cfg.Alerts.MutateQuery = true
	eval2 := newTestEvaluator(engine2, cfg)
	_, err = eval2.Evaluate(context.Background(), sched, "admin")
	require.NoError(t, err)
	assert.True(t, engine2.mutated)
}
