// Package publisher fans one post out to many channels and reduces the
// per-channel results into a bulk outcome.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/provider"
)

// ProviderFactory builds an adapter for one channel. *provider.Factory
// satisfies it.
type ProviderFactory interface {
	Provider(name string, ch *models.Channel) (provider.Provider, error)
}

// Assignment binds the post to one channel.
type Assignment struct {
	ScheduleID int64
	Channel    *models.Channel
}

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is the result of one assignment.
type Outcome struct {
	Assignment Assignment
	Provider   provider.Name
	Status     OutcomeStatus
	Result     *provider.PublishResult
	Err        error
	Attempts   int
}

// ErrorKind is the provider error kind of a failed outcome, or "" when the
// failure did not come from the provider taxonomy.
func (o Outcome) ErrorKind() string {
	return string(provider.KindOf(o.Err))
}

type Stats struct {
	TotalPlatforms int `json:"total_platforms"`
	SuccessCount   int `json:"success_count"`
	FailedCount    int `json:"failed_count"`
}

// Report holds the outcomes in assignment order.
type Report struct {
	Status   string
	Stats    Stats
	Outcomes []Outcome
}

// Options control a single bulk run. Hooks run on the worker goroutines and
// must be safe for concurrent use.
type Options struct {
	// Cancelled is consulted before each attempt starts. Attempts already
	// in flight are never interrupted.
	Cancelled func() bool
	// OnStart claims the assignment. Returning false skips it as cancelled.
	OnStart   func(Assignment) bool
	OnOutcome func(Outcome)
}

type Publisher struct {
	factory     ProviderFactory
	concurrency int
	maxRetries  int
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

type Option func(*Publisher)

// WithBackOff replaces the exponential retry policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(p *Publisher) { p.newBackOff = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

func New(factory ProviderFactory, cfg config.Publishing, opts ...Option) *Publisher {
	p := &Publisher{
		factory:     factory,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		logger:      slog.Default(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			if cfg.RetryInitial > 0 {
				b.InitialInterval = cfg.RetryInitial
			}
			if cfg.RetryMax > 0 {
				b.MaxInterval = cfg.RetryMax
			}
			b.MaxElapsedTime = 0
			return b
		},
	}
	if p.concurrency <= 0 {
		p.concurrency = 10
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish runs one independent attempt per assignment. A failure on one
// channel never affects another, and completion order is not assignment
// order.
func (p *Publisher) Publish(ctx context.Context, req *provider.PublishRequest, assignments []Assignment, opts Options) *Report {
	outcomes := make([]Outcome, len(assignments))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.concurrency)

	for i, a := range assignments {
		wg.Add(1)
		semaphore <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			o := p.attempt(ctx, req, a, opts)
			outcomes[i] = o
			if opts.OnOutcome != nil {
				opts.OnOutcome(o)
			}
		}()
	}
	wg.Wait()

	status, stats := Aggregate(outcomes)
	return &Report{Status: status, Stats: stats, Outcomes: outcomes}
}

func (p *Publisher) attempt(ctx context.Context, req *provider.PublishRequest, a Assignment, opts Options) Outcome {
	o := Outcome{Assignment: a}
	if a.Channel != nil {
		o.Provider = provider.Name(a.Channel.Provider)
	}
	logger := p.logger.With("schedule_id", a.ScheduleID, "provider", string(o.Provider))

	if ctx.Err() != nil || (opts.Cancelled != nil && opts.Cancelled()) {
		o.Status = OutcomeCancelled
		logger.Info("publish cancelled before start")
		return o
	}
	if a.Channel == nil {
		o.Status, o.Err = OutcomeFailed, fmt.Errorf("schedule %d has no channel", a.ScheduleID)
		return o
	}
	if opts.OnStart != nil && !opts.OnStart(a) {
		o.Status = OutcomeCancelled
		logger.Info("assignment not claimed, skipping")
		return o
	}

	prov, err := p.factory.Provider(a.Channel.Provider, a.Channel)
	if err != nil {
		o.Status, o.Err = OutcomeFailed, err
		logger.Error("provider unavailable", "error", err.Error())
		return o
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxRetries)), ctx)
	err = backoff.RetryNotify(func() error {
		o.Attempts++
		res, err := prov.Publish(ctx, req)
		if err != nil {
			if provider.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		o.Result = res
		return nil
	}, b, func(err error, wait time.Duration) {
		logger.Info("publish attempt failed, retrying", "attempt", o.Attempts, "wait", wait.String(), "error", err.Error())
	})
	if err != nil {
		o.Status, o.Err = OutcomeFailed, err
		logger.Error("publish failed", "attempts", o.Attempts, "error", err.Error())
		return o
	}

	o.Status = OutcomeSucceeded
	logger.Info("published", "attempts", o.Attempts, "platform_post_id", o.Result.PlatformPostID)
	return o
}

// Aggregate reduces outcomes to a bulk status. Cancelled outcomes only
// count when nothing else ran.
func Aggregate(outcomes []Outcome) (string, Stats) {
	var stats Stats
	cancelled := 0
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeSucceeded:
			stats.SuccessCount++
		case OutcomeFailed:
			stats.FailedCount++
		case OutcomeCancelled:
			cancelled++
		}
	}
	stats.TotalPlatforms = stats.SuccessCount + stats.FailedCount

	switch {
	case stats.TotalPlatforms == 0 && cancelled > 0:
		stats.TotalPlatforms = cancelled
		return models.BulkStatusCancelled, stats
	case stats.TotalPlatforms == 0:
		return models.BulkStatusPending, stats
	case stats.FailedCount == 0:
		return models.BulkStatusCompleted, stats
	case stats.SuccessCount == 0:
		return models.BulkStatusFailed, stats
	default:
		return models.BulkStatusPartial, stats
	}
}

// Summary renders the per-platform result for display, e.g.
// "published to 3 of 5 platforms; failed: Instagram (media processing timeout)".
func (r *Report) Summary() string {
	if r.Status == models.BulkStatusCancelled {
		return "cancelled before publishing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "published to %d of %d platforms", r.Stats.SuccessCount, r.Stats.TotalPlatforms)

	var failed []string
	cancelled := 0
	for _, o := range r.Outcomes {
		switch o.Status {
		case OutcomeFailed:
			failed = append(failed, fmt.Sprintf("%s (%s)", o.Provider.Title(), reason(o.Err)))
		case OutcomeCancelled:
			cancelled++
		}
	}
	if len(failed) > 0 {
		b.WriteString("; failed: " + strings.Join(failed, ", "))
	}
	if cancelled > 0 {
		fmt.Fprintf(&b, "; cancelled: %d", cancelled)
	}
	return b.String()
}

func reason(err error) string {
	pe, ok := provider.AsError(err)
	if !ok {
		if err == nil {
			return "unknown error"
		}
		return err.Error()
	}
	switch pe.Kind {
	case provider.KindMediaTimeout:
		return "media processing timeout"
	case provider.KindMediaProcessing:
		return "media processing failed"
	case provider.KindValidation:
		return "validation: " + pe.Message
	case provider.KindOAuth:
		return "authorization: " + pe.Message
	case provider.KindTransient:
		return "temporarily unavailable"
	default:
		return pe.Message
	}
}
