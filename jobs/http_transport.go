package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultBaseURL is the prediction API endpoint used when none is configured.
const DefaultBaseURL = "https://api.replicate.com"

// HTTPTransport talks to a Replicate-style prediction REST API:
// create a prediction for a model, fetch it by id, cancel it, and read its
// incremental output as a server-sent event stream.
type HTTPTransport struct {
	baseURL   string
	token     string
	userAgent string
	client    *http.Client
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) TransportOption {
	return func(t *HTTPTransport) { t.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = client }
}

// WithUserAgent sets a custom client identifier sent with every request.
func WithUserAgent(ua string) TransportOption {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// NewHTTPTransport creates a transport authenticating with the given API
// token.
func NewHTTPTransport(token string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: DefaultBaseURL,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// prediction is the remote wire shape, normalized into a Job by toJob.
type prediction struct {
	ID          string          `json:"id"`
	Model       string          `json:"model,omitempty"`
	Status      string          `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       any             `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (p *prediction) toJob() *Job {
	job := &Job{
		ID:            p.ID,
		RemoteModelID: p.Model,
		Input:         p.Input,
		SubmittedAt:   p.CreatedAt,
	}
	if p.CompletedAt != nil {
		job.CompletedAt = *p.CompletedAt
	}

	switch p.Status {
	case "starting":
		job.Status = StatusPending
	case "processing":
		job.Status = StatusRunning
	case "succeeded":
		job.Status = StatusSucceeded
	case "failed":
		job.Status = StatusFailed
	case "canceled":
		job.Status = StatusCanceled
	default:
		job.Status = StatusPending
	}

	if p.Error != nil {
		job.Error = fmt.Sprintf("%v", p.Error)
	}
	job.Outputs = decodeOutputs(p.Output)
	return job
}

// decodeOutputs accepts the heterogeneous remote output shapes: a single
// URL string, a list of URL strings, or nothing.
func decodeOutputs(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func (t *HTTPTransport) Create(ctx context.Context, remoteModelID string, input map[string]any) (*Job, error) {
	path := fmt.Sprintf("/v1/models/%s/predictions", remoteModelID)
	body := map[string]any{"input": input}
	return t.doJob(ctx, http.MethodPost, path, body, "create prediction")
}

func (t *HTTPTransport) Get(ctx context.Context, id string) (*Job, error) {
	return t.doJob(ctx, http.MethodGet, "/v1/predictions/"+id, nil, "get prediction")
}

func (t *HTTPTransport) Cancel(ctx context.Context, id string) (*Job, error) {
	return t.doJob(ctx, http.MethodPost, "/v1/predictions/"+id+"/cancel", nil, "cancel prediction")
}

// Stream opens the prediction's server-sent event channel and forwards
// "output" events until the remote stream closes. A remote "error" event is
// delivered as the final StreamEvent with Err set.
func (t *HTTPTransport) Stream(ctx context.Context, id string) (<-chan StreamEvent, error) {
	req, err := t.newRequest(ctx, http.MethodGet, "/v1/predictions/"+id+"/stream", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "stream prediction", Transient: true, Err: errors.Wrapf(err, "failed to open stream for %s", id)}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, t.statusError("stream prediction", resp)
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		event := ""
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimPrefix(line, "data:")
				data = strings.TrimPrefix(data, " ")
				switch event {
				case "error":
					ch <- StreamEvent{Err: &PredictionError{JobID: id, Detail: data}}
					return
				case "done":
					return
				default:
					ch <- StreamEvent{Data: data}
				}
			}

			select {
			case <-ctx.Done():
				ch <- StreamEvent{Err: ctx.Err()}
				return
			default:
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamEvent{Err: &TransportError{Op: "stream prediction", Transient: true, Err: err}}
		}
	}()
	return ch, nil
}

func (t *HTTPTransport) doJob(ctx context.Context, method, path string, body any, op string) (*Job, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Op: op, Err: errors.Wrap(err, "failed to marshal request body")}
		}
		reader = bytes.NewReader(data)
	}

	req, err := t.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Transient: true, Err: errors.Wrapf(err, "request to %s failed", path)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, t.statusError(op, resp)
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, &TransportError{Op: op, Transient: true, Err: errors.Wrap(err, "failed to decode response")}
	}
	return pred.toJob(), nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	return req, nil
}

// statusError classifies a non-2xx response: 5xx-class plus request
// timeouts and rate limits are transient; everything else is a definitive
// rejection.
func (t *HTTPTransport) statusError(op string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	transient := resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout
	return &TransportError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Transient:  transient,
		Err:        errors.Errorf("remote responded %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
	}
}

var _ Transport = (*HTTPTransport)(nil)
