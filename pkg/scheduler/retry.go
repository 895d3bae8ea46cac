package scheduler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-retry"
)

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if p.Max > 0 {
		b = retry.WithCappedDuration(p.Max, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// attempt 每次尝试都受 JobTimeout 约束，返回最后一次的错误，panic 不重试
func (s *Scheduler) attempt(ctx context.Context, e *entry) error {
	tries := 0
	return retry.Do(ctx, e.retry.backoff(), func(ctx context.Context) error {
		tries++
		if tries > 1 {
			s.log.Warn("job retry", s.jobFields(e, "attempt", tries)...)
		}
		err := s.call(ctx, e)
		var pe *PanicError
		if err == nil || errors.As(err, &pe) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (s *Scheduler) call(ctx context.Context, e *entry) (err error) {
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Job: e.name, Value: r}
		}
	}()
	return e.fn(ctx)
}
