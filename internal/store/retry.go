package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy controls retry behavior for one store operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// NoRetry disables retries for an operation.
var NoRetry = Policy{MaxAttempts: 1}

// DefaultInsertPolicy retries transient insert failures up to 3 attempts
// with 500ms, 1000ms backoff between them.
var DefaultInsertPolicy = Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}

// Retrier decorates a Store with per-operation retry policies. Only errors
// classified as transient are retried; everything else propagates
// immediately. Exhausting a policy returns the last error.
type Retrier struct {
	next    Store
	query   Policy
	command Policy
	insert  Policy
	sleep   func(time.Duration)
}

// RetrierOption customizes a Retrier.
type RetrierOption func(*Retrier)

// WithInsertPolicy overrides the insert retry policy.
func WithInsertPolicy(p Policy) RetrierOption {
	return func(r *Retrier) { r.insert = p }
}

// WithQueryPolicy overrides the query retry policy.
func WithQueryPolicy(p Policy) RetrierOption {
	return func(r *Retrier) { r.query = p }
}

// WithCommandPolicy overrides the command retry policy.
func WithCommandPolicy(p Policy) RetrierOption {
	return func(r *Retrier) { r.command = p }
}

// WithSleep injects the sleep function; used by tests to verify backoff
// timing without waiting.
func WithSleep(sleep func(time.Duration)) RetrierOption {
	return func(r *Retrier) { r.sleep = sleep }
}

// NewRetrier wraps next with retry handling. By default only Insert is
// retried, matching the write-path exposure to transient network faults.
func NewRetrier(next Store, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		next:    next,
		query:   NoRetry,
		command: NoRetry,
		insert:  DefaultInsertPolicy,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Query(ctx context.Context, sql string, params map[string]any) ([]Row, error) {
	var rows []Row
	err := r.do(ctx, r.query, func() error {
		var err error
		rows, err = r.next.Query(ctx, sql, params)
		return err
	})
	return rows, err
}

func (r *Retrier) Command(ctx context.Context, sql string, params map[string]any) error {
	return r.do(ctx, r.command, func() error {
		return r.next.Command(ctx, sql, params)
	})
}

func (r *Retrier) Insert(ctx context.Context, table string, rows []Row) error {
	return r.do(ctx, r.insert, func() error {
		return r.next.Insert(ctx, table, rows)
	})
}

func (r *Retrier) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func (r *Retrier) Close() error {
	return r.next.Close()
}

func (r *Retrier) do(ctx context.Context, policy Policy, op func() error) error {
	if policy.MaxAttempts <= 1 {
		return op()
	}

	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = policy.BaseDelay
	delays.Multiplier = 2
	delays.RandomizationFactor = 0
	delays.MaxInterval = policy.BaseDelay << uint(policy.MaxAttempts)
	delays.Reset()

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == policy.MaxAttempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		default:
		}
		r.sleep(delays.NextBackOff())
	}
	return err
}

// transientMarkers are error-message fragments that indicate a retriable
// network-level condition.
var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"socket hang up",
	"i/o timeout",
	"timeout",
	"unexpected eof",
}

// IsTransient reports whether err looks like a transient network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
