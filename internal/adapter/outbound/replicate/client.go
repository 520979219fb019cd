package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/portraitlab/server/internal/infra/config"
	"github.com/portraitlab/server/internal/port/outbound"
	"github.com/portraitlab/server/internal/utils/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const providerName = "replicate"

// Operations, also used as breaker and metric labels.
const (
	opEnqueueTraining = "enqueue_training"
	opCancelTraining  = "cancel_training"
	opGetTraining     = "get_training"
	opRunInference    = "run_inference"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("replicate: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("replicate: status %d", e.StatusCode)
}

// retryable reports whether the failure says something about provider health.
func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the Replicate HTTP API for trainings and predictions.
// Each operation runs behind its own circuit breaker.
type Client struct {
	cfg      config.ReplicateConfig
	client   *http.Client
	breakers map[string]*gobreaker.CircuitBreaker[any]
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewClient creates a new Replicate client with the given HTTP client.
func NewClient(cfg config.ReplicateConfig, client *http.Client, m *metrics.Metrics, logger *zap.Logger) *Client {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CircuitTimeout <= 0 {
		cfg.CircuitTimeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:      cfg,
		client:   client,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		metrics:  m,
		logger:   logger,
	}
	for _, op := range []string{opEnqueueTraining, opCancelTraining, opGetTraining, opRunInference} {
		c.breakers[op] = c.newBreaker(op)
	}
	return c
}

// Compile-time interface checks
var (
	_ outbound.TrainingProviderPort  = (*Client)(nil)
	_ outbound.InferenceProviderPort = (*Client)(nil)
)

func (c *Client) newBreaker(op string) *gobreaker.CircuitBreaker[any] {
	threshold := c.cfg.FailureThreshold
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        providerName + "." + op,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     c.cfg.CircuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.retryable()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.metrics.SetBreakerOpen(providerName, op, to == gobreaker.StateOpen)
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// BreakerState returns the state of an operation's breaker.
func (c *Client) BreakerState(op string) gobreaker.State {
	if b, ok := c.breakers[op]; ok {
		return b.State()
	}
	return gobreaker.StateClosed
}

// --- wire types ---

type trainingRequest struct {
	Destination         string         `json:"destination"`
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

// trainingResponse is a training object as returned by the API and posted to
// webhooks.
type trainingResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output *trainingOutput `json:"output"`
	Error  json.RawMessage `json:"error"`
}

type trainingOutput struct {
	Version string `json:"version"`
	Weights string `json:"weights"`
}

type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// EnqueueTraining starts a training run and returns its job id.
func (c *Client) EnqueueTraining(ctx context.Context, job *outbound.TrainingJob) (string, error) {
	owner, name, version, err := splitVersion(c.cfg.TrainerVersion)
	if err != nil {
		return "", err
	}

	body := &trainingRequest{
		Destination: c.cfg.Destination,
		Input: map[string]any{
			"input_images": job.ImageURLs,
			"trigger_word": c.cfg.TriggerWord,
			"steps":        c.cfg.TrainingSteps,
		},
	}
	if c.cfg.WebhookURL != "" {
		body.Webhook = c.cfg.WebhookURL
		body.WebhookEventsFilter = []string{"start", "completed"}
	}

	path := fmt.Sprintf("/models/%s/%s/versions/%s/trainings",
		url.PathEscape(owner), url.PathEscape(name), url.PathEscape(version))

	var resp trainingResponse
	if err := c.call(ctx, opEnqueueTraining, http.MethodPost, path, body, nil, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("replicate: training response without id")
	}

	c.logger.Info("training enqueued",
		zap.String("job_id", resp.ID),
		zap.String("user_id", job.UserID.String()),
		zap.Int("images", len(job.ImageURLs)),
	)
	return resp.ID, nil
}

// CancelTraining cancels a training run.
func (c *Client) CancelTraining(ctx context.Context, jobID string) error {
	path := "/trainings/" + url.PathEscape(jobID) + "/cancel"
	return c.call(ctx, opCancelTraining, http.MethodPost, path, nil, nil, nil)
}

// GetTraining polls a training run.
func (c *Client) GetTraining(ctx context.Context, jobID string) (*outbound.ProviderUpdate, error) {
	var resp trainingResponse
	if err := c.call(ctx, opGetTraining, http.MethodGet, "/trainings/"+url.PathEscape(jobID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toUpdate()
}

// RunInference runs one prediction and waits for its first output image.
func (c *Client) RunInference(ctx context.Context, req *outbound.InferenceRequest) (string, error) {
	_, _, version, err := splitVersion(req.ModelVersion)
	if err != nil {
		return "", err
	}

	body := &predictionRequest{
		Version: version,
		Input: map[string]any{
			"prompt":      req.Prompt,
			"num_outputs": 1,
		},
	}
	header := http.Header{}
	if wait := int(c.cfg.PredictWait.Seconds()); wait > 0 {
		header.Set("Prefer", fmt.Sprintf("wait=%d", wait))
	}

	var resp predictionResponse
	if err := c.call(ctx, opRunInference, http.MethodPost, "/predictions", body, header, &resp); err != nil {
		return "", err
	}

	switch resp.Status {
	case "succeeded":
	case "failed", "canceled":
		return "", fmt.Errorf("replicate: prediction %s %s: %s", resp.ID, resp.Status, errorText(resp.Error))
	default:
		return "", fmt.Errorf("replicate: prediction %s still %s", resp.ID, resp.Status)
	}
	return firstOutput(resp.Output)
}

// call executes one API request behind the operation's breaker.
func (c *Client) call(ctx context.Context, op, method, path string, body any, header http.Header, out any) error {
	start := time.Now()
	_, err := c.breakers[op].Execute(func() (any, error) {
		return nil, c.do(ctx, method, path, body, header, out)
	})

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = "circuit_open"
	default:
		status = "error"
	}
	c.metrics.RecordProviderRequest(providerName, op, status, time.Since(start))

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	// Execute request
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var problem struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(respBody, &problem)
		return &APIError{StatusCode: resp.StatusCode, Detail: problem.Detail}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// splitVersion splits "owner/model:version". A bare version id is accepted
// with empty owner and model.
func splitVersion(ref string) (owner, name, version string, err error) {
	ref = strings.TrimSpace(ref)
	model, version, found := strings.Cut(ref, ":")
	if !found {
		if ref == "" || strings.Contains(ref, "/") {
			return "", "", "", fmt.Errorf("replicate: invalid version reference %q", ref)
		}
		return "", "", ref, nil
	}
	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" || version == "" {
		return "", "", "", fmt.Errorf("replicate: invalid version reference %q", ref)
	}
	return owner, name, version, nil
}

// firstOutput extracts the first URL of a prediction output, which is either
// a string or a list of strings depending on the model.
func firstOutput(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", fmt.Errorf("replicate: unexpected prediction output: %w", err)
	}
	if len(list) == 0 {
		return "", nil
	}
	return list[0], nil
}

// errorText renders the API's error field, which may be a string or an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
