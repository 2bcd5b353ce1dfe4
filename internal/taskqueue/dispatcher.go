package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/peakform/peakform-backend/internal/platform/logger"
)

// WorkerSecretHeader carries the shared secret authenticating dispatcher
// calls to the worker endpoint.
const WorkerSecretHeader = "X-Worker-Secret"

// Broker is the redis surface the dispatcher consumes. Split out so
// dispatcher logic is testable against an in-memory fake.
type Broker interface {
	Pop(ctx context.Context, timeout time.Duration) (*Invocation, error)
	ScheduleRetry(ctx context.Context, inv Invocation, readyAt time.Time) error
	PromoteDue(ctx context.Context, now time.Time) (int, error)
}

// DispatchPolicy bounds redelivery. An invocation that keeps drawing the
// retry signal is redelivered with exponential backoff until MaxAttempts,
// then dropped; the job it belonged to stays processing, which is an
// operational alerting concern, not a correctness one.
type DispatchPolicy struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func DefaultDispatchPolicy() DispatchPolicy {
	return DispatchPolicy{
		MaxAttempts:    5,
		BaseBackoff:    10 * time.Second,
		MaxBackoff:     5 * time.Minute,
		AttemptTimeout: 120 * time.Second,
	}
}

// Dispatcher delivers queued step invocations to the worker endpoint over
// HTTP and interprets the response as the two-channel retry signal: 2xx
// means handled (drop), 503 means redeliver after backoff, anything else
// means the delivery is not retryable (drop).
type Dispatcher struct {
	log        *logger.Logger
	broker     Broker
	workerURL  string
	secret     string
	httpClient *http.Client
	policy     DispatchPolicy
}

func NewDispatcher(baseLog *logger.Logger, broker Broker, workerURL string, secret string, policy DispatchPolicy) *Dispatcher {
	if policy.MaxAttempts <= 0 {
		policy = DefaultDispatchPolicy()
	}
	return &Dispatcher{
		log:       baseLog.With("component", "Dispatcher"),
		broker:    broker,
		workerURL: workerURL,
		secret:    secret,
		httpClient: &http.Client{
			Timeout: policy.AttemptTimeout,
		},
		policy: policy,
	}
}

// Start runs the consume and promote loops until ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.consumeLoop(ctx)
	go d.promoteLoop(ctx)
}

func (d *Dispatcher) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		inv, err := d.broker.Pop(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Warn("Queue pop failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if inv == nil {
			continue
		}
		d.Deliver(ctx, *inv)
	}
}

func (d *Dispatcher) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.broker.PromoteDue(ctx, time.Now()); err != nil {
				d.log.Warn("Promote delayed invocations failed", "error", err)
			}
		}
	}
}

// Deliver performs one delivery attempt and schedules a retry when the
// worker asks for one.
func (d *Dispatcher) Deliver(ctx context.Context, inv Invocation) {
	retryable, err := d.post(ctx, inv)
	if err == nil && !retryable {
		return
	}
	if !retryable {
		d.log.Warn("Invocation dropped (not retryable)", "job_id", inv.JobID, "step", inv.Step, "error", err)
		return
	}

	attempt := inv.Attempt + 1
	if attempt >= d.policy.MaxAttempts {
		d.log.Error("Invocation retry budget exhausted; dropping",
			"job_id", inv.JobID, "step", inv.Step, "attempts", attempt, "error", err)
		return
	}
	inv.Attempt = attempt
	readyAt := time.Now().Add(Backoff(d.policy, attempt))
	if schedErr := d.broker.ScheduleRetry(ctx, inv, readyAt); schedErr != nil {
		d.log.Error("Schedule retry failed; invocation lost",
			"job_id", inv.JobID, "step", inv.Step, "error", schedErr)
		return
	}
	d.log.Warn("Invocation scheduled for retry",
		"job_id", inv.JobID, "step", inv.Step, "attempt", attempt, "ready_at", readyAt, "error", err)
}

// post returns (retryable, err). err is nil on a 2xx response.
func (d *Dispatcher) post(ctx context.Context, inv Invocation) (bool, error) {
	body, err := json.Marshal(map[string]any{
		"job_id": inv.JobID.String(),
		"step":   inv.Step,
	})
	if err != nil {
		return false, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.policy.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, d.workerURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WorkerSecretHeader, d.secret)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		// transport failure: the worker may never have seen the invocation
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return true, fmt.Errorf("worker requested retry (status %d)", resp.StatusCode)
	default:
		return false, fmt.Errorf("worker rejected invocation (status %d)", resp.StatusCode)
	}
}

// Backoff computes the delay before redelivery attempt n (1-based):
// base * 2^(n-1), capped at MaxBackoff.
func Backoff(policy DispatchPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := policy.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= policy.MaxBackoff {
			return policy.MaxBackoff
		}
	}
	if delay > policy.MaxBackoff {
		return policy.MaxBackoff
	}
	return delay
}
