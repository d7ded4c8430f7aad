package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/temirov/gemini-tasks/internal/errkind"
)

const (
	attemptLogMessage      = "calling model"
	retryLogMessage        = "recoverable error, retrying"
	exhaustedErrorFormat   = "exhausted %d attempts"
	noResponseErrorMessage = "no response received from the model"
)

type RunOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

// SleepFunc waits between attempts; it returns early with ctx's error.
type SleepFunc func(ctx context.Context, duration time.Duration) error

// Call is one attempt of a remote request.
type Call func(ctx context.Context) (*Response, error)

// ContextSleep waits for duration or until ctx is done.
func ContextSleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Runner retries recoverable failures a fixed number of times with a fixed
// interval between attempts.
type Runner struct {
	Options RunOptions
	Logger  *zap.Logger
	Sleep   SleepFunc
}

func (r Runner) Run(ctx context.Context, call Call) (*Response, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}
	attempts := max(1, r.Options.MaxAttempts)

	var response *Response
	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Info(attemptLogMessage, zap.Int("attempt", attempt), zap.Int("max_attempts", attempts))
		result, callErr := call(ctx)
		if callErr == nil {
			response = result
			break
		}
		if !errkind.IsRecoverable(callErr) {
			return nil, callErr
		}
		if attempt == attempts {
			return nil, errors.Wrapf(callErr, exhaustedErrorFormat, attempts)
		}
		logger.Warn(retryLogMessage,
			zap.Int("attempt", attempt),
			zap.Duration("interval", r.Options.Interval),
			zap.Error(callErr))
		if sleepErr := sleep(ctx, r.Options.Interval); sleepErr != nil {
			return nil, errors.Wrap(sleepErr, "wait before retry")
		}
	}

	if response == nil {
		return nil, errkind.Mark(errors.New(noResponseErrorMessage), errkind.ErrResponseFormat)
	}
	return response, nil
}
