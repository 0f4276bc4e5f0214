package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Client drives jobs through their lifecycle against a Transport.
type Client struct {
	transport       Transport
	retry           RetryPolicy
	pollInterval    time.Duration
	maxPollFailures int
	logger          zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy sets the retry policy for transient transport failures.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.retry = policy }
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) { c.pollInterval = interval }
}

// WithMaxPollFailures sets how many consecutive transient poll failures are
// tolerated before AwaitCompletion gives up.
func WithMaxPollFailures(n int) Option {
	return func(c *Client) { c.maxPollFailures = n }
}

// WithLogger sets the client logger. The default logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client over the given transport.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:       transport,
		retry:           DefaultRetryPolicy(),
		pollInterval:    2 * time.Second,
		maxPollFailures: 3,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit issues the request to the remote service. Transient transport
// failures are retried per the client's policy; after the budget is
// exhausted (or immediately for a non-transient rejection) Submit fails
// with *SubmissionError.
func (c *Client) Submit(ctx context.Context, remoteModelID, promptText string, params map[string]any) (*Job, error) {
	input := make(map[string]any, len(params)+1)
	for k, v := range params {
		input[k] = v
	}
	input["prompt"] = promptText

	job, attempts, err := retryTransient(ctx, c.retry, func(ctx context.Context) (*Job, error) {
		return c.transport.Create(ctx, remoteModelID, input)
	})
	if err != nil {
		c.logger.Error().Err(err).Str("model", remoteModelID).Int("attempts", attempts).Msg("submission failed")
		return nil, &SubmissionError{RemoteModelID: remoteModelID, Attempts: attempts, Err: err}
	}

	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.RemoteModelID == "" {
		job.RemoteModelID = remoteModelID
	}
	if job.Input == nil {
		job.Input = input
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	c.logger.Info().Str("job_id", job.ID).Str("model", remoteModelID).Msg("job submitted")
	return job, nil
}

// AwaitCompletion polls the remote status until the job reaches a terminal
// state or timeout elapses. A remote-reported failure surfaces as
// *PredictionError; a timeout as *TimeoutError. Neither cancels the remote
// job; the returned Job always carries the identifier so the caller can
// resume with Get later. Transient poll failures are tolerated up to the
// configured consecutive count and then reported as *PollError.
func (c *Client) AwaitCompletion(ctx context.Context, job *Job, timeout time.Duration) (*Job, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	failures := 0
	for {
		if job.Status.Terminal() {
			return c.finalize(job)
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-deadline.C:
			c.logger.Warn().Str("job_id", job.ID).Dur("timeout", timeout).Msg("polling timed out")
			return job, &TimeoutError{JobID: job.ID, Timeout: timeout}
		case <-time.After(c.pollInterval):
		}

		latest, err := c.transport.Get(ctx, job.ID)
		if err != nil {
			if IsTransient(err) && failures < c.maxPollFailures {
				failures++
				c.logger.Debug().Err(err).Str("job_id", job.ID).Int("failures", failures).Msg("poll failed, retrying")
				continue
			}
			return job, &PollError{JobID: job.ID, Err: err}
		}
		failures = 0
		job = mergeRemote(job, latest)
	}
}

// Run is the submit-and-wait convenience used by the orchestrator.
func (c *Client) Run(ctx context.Context, remoteModelID, promptText string, params map[string]any, timeout time.Duration) (*Job, error) {
	job, err := c.Submit(ctx, remoteModelID, promptText, params)
	if err != nil {
		return nil, err
	}
	return c.AwaitCompletion(ctx, job, timeout)
}

// Stream returns the job's incremental output. It is only meaningful for
// models that emit incremental output; the stream is finite and not
// restartable. A mid-stream job failure arrives as the last event with Err
// set.
func (c *Client) Stream(ctx context.Context, job *Job) (<-chan StreamEvent, error) {
	return c.transport.Stream(ctx, job.ID)
}

// Cancel requests cancellation from the remote service. Cancelling a job
// that is already terminal is a no-op returning the existing state.
func (c *Client) Cancel(ctx context.Context, job *Job) (*Job, error) {
	if job.Status.Terminal() {
		return job, nil
	}
	latest, _, err := retryTransient(ctx, c.retry, func(ctx context.Context) (*Job, error) {
		return c.transport.Cancel(ctx, job.ID)
	})
	if err != nil {
		return job, &CancellationError{JobID: job.ID, Err: err}
	}
	c.logger.Info().Str("job_id", job.ID).Msg("job cancelled")
	return mergeRemote(job, latest), nil
}

// Get re-fetches the current state of a previously submitted job by its
// identifier, enabling resumption after a timeout or process restart.
func (c *Client) Get(ctx context.Context, jobID string) (*Job, error) {
	job, _, err := retryTransient(ctx, c.retry, func(ctx context.Context) (*Job, error) {
		return c.transport.Get(ctx, jobID)
	})
	if err != nil {
		return nil, &PollError{JobID: jobID, Err: err}
	}
	return job, nil
}

// finalize maps a terminal job onto the caller-facing contract: a
// remote-reported failure becomes *PredictionError, every other terminal
// state is returned as-is.
func (c *Client) finalize(job *Job) (*Job, error) {
	if job.CompletedAt.IsZero() {
		job.CompletedAt = time.Now().UTC()
	}
	if job.Status == StatusFailed {
		return job, &PredictionError{JobID: job.ID, Detail: job.Error}
	}
	return job, nil
}

// mergeRemote folds a freshly fetched remote view into the known job,
// keeping locally known fields the remote response omits.
func mergeRemote(known, latest *Job) *Job {
	if latest == nil {
		return known
	}
	if latest.RemoteModelID == "" {
		latest.RemoteModelID = known.RemoteModelID
	}
	if latest.Input == nil {
		latest.Input = known.Input
	}
	if latest.SubmittedAt.IsZero() {
		latest.SubmittedAt = known.SubmittedAt
	}
	return latest
}
