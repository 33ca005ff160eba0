package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/infrastructure/resilience"
)

// Client starts asynchronous extraction jobs against the extraction service.
// Job starts are throttled with a local token bucket because the service
// enforces an account-wide start rate and rejects bursts hard.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

func New(baseURL string, startsPerSecond float64, executor *resilience.Executor) *Client {
	if startsPerSecond <= 0 {
		startsPerSecond = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
		limiter:    rate.NewLimiter(rate.Limit(startsPerSecond), 1),
	}
}

type startJobRequest struct {
	Document           domain.DocumentRef        `json:"document"`
	FeatureTypes       []string                  `json:"feature_types,omitempty"`
	ClientRequestToken string                    `json:"client_request_token"`
	Output             domain.OutputTarget       `json:"output"`
	Notification       domain.NotificationTarget `json:"notification"`
}

type startJobResponse struct {
	JobID string `json:"job_id"`
}

// StartJob starts one extraction job and returns its id. The request token
// makes the start idempotent on the service side: repeating a token returns
// the original job id.
func (c *Client) StartJob(ctx context.Context, req domain.ExtractionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("job start throttle: %w", err)
	}

	payload := startJobRequest{
		Document:           req.Document,
		ClientRequestToken: req.IdempotencyKey,
		Output:             req.Output,
		Notification:       req.Notification,
	}
	// Plain text jobs run text detection only and take no feature list.
	path := "/v1/analysis-jobs"
	if req.Feature == domain.FeatureText {
		path = "/v1/text-detection-jobs"
	} else {
		payload.FeatureTypes = []string{string(req.Feature)}
	}

	var response startJobResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, path, payload, &response)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "extraction.start", call, classifyStartError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("start extraction job", err)
	}
	if response.JobID == "" {
		return "", fmt.Errorf("start extraction job: empty job id")
	}
	return response.JobID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("extraction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  "start-job",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode job response: %w", err)
	}
	return nil
}
