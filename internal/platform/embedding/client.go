// Package embedding is the client for the Vertex AI text-embedding predict
// endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Config configures a Client.
type Config struct {
	// Endpoint is the API root. Empty means
	// https://{location}-aiplatform.googleapis.com/v1.
	Endpoint    string
	Project     string
	Location    string
	Model       string
	AccessToken string
	Dimensions  int
	TaskType    string
	// BatchSize caps the instances sent per predict call.
	BatchSize int
	Timeout   time.Duration
}

// Client implements domain.Embedder. Calls go through a circuit breaker and a
// failed call is retried once unless the breaker is open.
type Client struct {
	url        string
	token      string
	dims       int
	taskType   string
	batchSize  int
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[][]float64]
	logger     *slog.Logger
}

var _ domain.Embedder = (*Client)(nil)

// NewClient creates an embedding client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", cfg.Location)
	}
	if cfg.TaskType == "" {
		cfg.TaskType = "RETRIEVAL_DOCUMENT"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger = logger.With(slog.String("component", "embedding"))
	cb := gobreaker.NewCircuitBreaker[[][]float64](gobreaker.Settings{
		Name:        "vertex-embedding",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding: circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		url: fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:predict",
			strings.TrimRight(cfg.Endpoint, "/"), cfg.Project, cfg.Location, cfg.Model),
		token:      strings.TrimSpace(cfg.AccessToken),
		dims:       cfg.Dimensions,
		taskType:   cfg.TaskType,
		batchSize:  cfg.BatchSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         cb,
		logger:     logger,
	}
}

type instance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type parameters struct {
	OutputDimensionality int `json:"outputDimensionality,omitempty"`
}

type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type predictResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// Embed returns the embedding of one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out[0]) == 0 {
		return nil, errors.New("embedding: empty embedding returned")
	}
	return out[0], nil
}

// EmbedBatch returns one embedding per text, in order. Texts are sent in
// chunks of the configured batch size.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		chunk, err := c.predictWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding: batch %d-%d: %w", start, end, err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (c *Client) predictWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		res, err := c.cb.Execute(func() ([][]float64, error) {
			return c.predict(ctx, texts)
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		c.logger.WarnContext(ctx, "embedding: predict failed, retrying",
			slog.Int("texts", len(texts)),
			slog.String("error", err.Error()),
		)
	}
	if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, lastErr)
	}
	return nil, lastErr
}

func (c *Client) predict(ctx context.Context, texts []string) ([][]float64, error) {
	reqBody := predictRequest{
		Instances:  make([]instance, len(texts)),
		Parameters: parameters{OutputDimensionality: c.dims},
	}
	for i, t := range texts {
		reqBody.Instances[i] = instance{Content: t, TaskType: c.taskType}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var pr predictResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	if len(pr.Predictions) != len(texts) {
		return nil, fmt.Errorf("predict returned %d predictions for %d texts", len(pr.Predictions), len(texts))
	}
	out := make([][]float64, len(texts))
	for i, p := range pr.Predictions {
		out[i] = p.Embeddings.Values
	}
	return out, nil
}
