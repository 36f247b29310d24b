package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/k-code-yt/go-storefront/internal/metrics"
	pkgerrors "github.com/k-code-yt/go-storefront/pkg/errors"
	pkgkafka "github.com/k-code-yt/go-storefront/pkg/kafka"
	"github.com/sirupsen/logrus"
)

type Handler func(ctx context.Context, job *Job) error

type Ledger interface {
	Claim(ctx context.Context, job *Job, maxAttempts int) (attempt int, ok bool, err error)
	MarkSucceeded(ctx context.Context, dedupKey string) error
	MarkRetrying(ctx context.Context, dedupKey string, reason string, nextRunAt time.Time) error
	MarkDead(ctx context.Context, dedupKey string, reason string) error
}

// Acker settles a consumed message so its offset can be committed.
type Acker interface {
	UpdateState(tp *kafka.TopicPartition, newState pkgkafka.MsgState)
}

type Outcome string

const (
	Outcome_Succeeded    Outcome = "succeeded"
	Outcome_Skipped      Outcome = "skipped"
	Outcome_DeadLettered Outcome = "dead_lettered"
	Outcome_Interrupted  Outcome = "interrupted"
)

type RunnerConfig struct {
	Policy         RetryPolicy
	Concurrency    int
	HandlerTimeout time.Duration
}

type Runner struct {
	handler Handler
	ledger  Ledger
	sink    DeadLetterSink
	cfg     RunnerConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRunner(handler Handler, ledger Ledger, sink DeadLetterSink, cfg RunnerConfig) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{
		handler: handler,
		ledger:  ledger,
		sink:    sink,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Run drains msgs with cfg.Concurrency workers until msgs is closed or ctx
// is done. Interrupted jobs are left unacknowledged for redelivery.
func (r *Runner) Run(ctx context.Context, msgs <-chan *pkgkafka.Message[*Job], acker Acker) {
	wg := &sync.WaitGroup{}
	wg.Add(r.cfg.Concurrency)
	for range r.cfg.Concurrency {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					r.settle(msg, r.Process(ctx, msg.Data), acker)
				}
			}
		}()
	}
	wg.Wait()
}

func (r *Runner) settle(msg *pkgkafka.Message[*Job], outcome Outcome, acker Acker) {
	switch outcome {
	case Outcome_Succeeded, Outcome_Skipped:
		acker.UpdateState(msg.Metadata, pkgkafka.MsgState_Success)
	case Outcome_DeadLettered:
		acker.UpdateState(msg.Metadata, pkgkafka.MsgState_Error)
	}
}

// Process runs one job to a terminal outcome, retrying with backoff.
func (r *Runner) Process(ctx context.Context, job *Job) Outcome {
	log := logrus.WithFields(logrus.Fields{
		"dedupKey": job.DedupKey,
		"eventID":  job.EventID,
	})

	attempt := 0
	for {
		var lastErr error
		n, ok, err := r.ledger.Claim(ctx, job, r.cfg.Policy.MaxAttempts)
		switch {
		case err != nil:
			attempt++
			lastErr = err
		case !ok:
			log.Info("JOB:SKIPPED_TERMINAL")
			return r.finish(Outcome_Skipped)
		default:
			attempt = n
			lastErr = r.attempt(ctx, job)
			if lastErr == nil {
				if err := r.ledger.MarkSucceeded(ctx, job.DedupKey); err != nil {
					log.WithError(err).Warn("JOB:LEDGER_UPDATE_FAILED")
				}
				log.WithField("attempt", attempt).Info("JOB:SUCCEEDED")
				return r.finish(Outcome_Succeeded)
			}
		}

		if ctx.Err() != nil {
			log.WithError(lastErr).Warn("JOB:INTERRUPTED")
			return r.finish(Outcome_Interrupted)
		}
		if pkgerrors.IsPermanent(lastErr) || r.cfg.Policy.Exhausted(attempt) {
			r.deadLetter(ctx, job, attempt, lastErr)
			return r.finish(Outcome_DeadLettered)
		}

		delay := r.cfg.Policy.Delay(attempt)
		if err := r.ledger.MarkRetrying(ctx, job.DedupKey, lastErr.Error(), r.now().Add(delay)); err != nil {
			log.WithError(err).Warn("JOB:LEDGER_UPDATE_FAILED")
		}
		metrics.JobRetries.Inc()
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(lastErr).Warn("JOB:RETRY")

		if err := r.sleep(ctx, delay); err != nil {
			log.Warn("JOB:INTERRUPTED")
			return r.finish(Outcome_Interrupted)
		}
	}
}

func (r *Runner) attempt(ctx context.Context, job *Job) (err error) {
	start := time.Now()
	defer func() {
		metrics.JobDuration.Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	if r.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.HandlerTimeout)
		defer cancel()
	}
	return r.handler(ctx, job)
}

func (r *Runner) deadLetter(ctx context.Context, job *Job, attempts int, cause error) {
	// Shutdown must not lose the terminal record.
	ctx = context.WithoutCancel(ctx)
	dl := &DeadLetter{
		DedupKey: job.DedupKey,
		EventID:  job.EventID,
		Attempts: attempts,
		Reason:   cause.Error(),
		FailedAt: r.now().UTC(),
	}

	var errs []error
	if err := r.ledger.MarkDead(ctx, job.DedupKey, dl.Reason); err != nil {
		errs = append(errs, err)
	}
	if r.sink != nil {
		if err := r.sink.DeadLetter(ctx, dl); err != nil {
			errs = append(errs, err)
		}
	}

	metrics.JobsDeadLettered.Inc()
	entry := logrus.WithFields(logrus.Fields{
		"dedupKey":  job.DedupKey,
		"eventID":   job.EventID,
		"attempts":  attempts,
		"permanent": pkgerrors.IsPermanent(cause),
	}).WithError(cause)
	if err := errors.Join(errs...); err != nil {
		entry = entry.WithField("sinkError", err.Error())
	}
	entry.Error("JOB:DEAD_LETTERED")
}

func (r *Runner) finish(o Outcome) Outcome {
	metrics.JobsProcessed.WithLabelValues(string(o)).Inc()
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
