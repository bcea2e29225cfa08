package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/quartzbi/beacon/logger"
)

// Classifier reports whether an error is worth retrying. Errors it
// rejects are returned to the caller immediately with their chain intact.
type Classifier func(err error) bool

// Options controls the retry harness. Zero values fall back to a
// constant one second interval and a single attempt.
type Options struct {
	MaxTries int
	Interval time.Duration
	// Exponential switches from a constant interval to exponential
	// backoff starting at Interval.
	Exponential bool
	Log         *zap.SugaredLogger
}

func (o Options) backoff() backoff.BackOff {
	interval := o.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if o.Exponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = interval
		b.MaxElapsedTime = 0
		return b
	}
	return backoff.NewConstantBackOff(interval)
}

// Do runs fn until it succeeds, the classifier rejects its error, or
// MaxTries attempts have been made. The last error is returned unwrapped
// so callers can inspect the chain with errors.Is.
func Do(ctx context.Context, fn func() error, classify Classifier, opts Options) error {
	maxTries := opts.MaxTries
	if maxTries < 1 {
		maxTries = 1
	}
	log := opts.Log
	if log == nil {
		log = logger.Logger
	}

	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if classify != nil && !classify(err) {
			return backoff.Permanent(err)
		}
		if attempt >= maxTries {
			return backoff.Permanent(err)
		}
		log.Infow("Retrying after error",
			"attempt", attempt,
			"max_tries", maxTries,
			"error", err,
		)
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(opts.backoff(), ctx))
	if permanent, ok := err.(*backoff.PermanentError); ok {
		return permanent.Err
	}
	return err
}
