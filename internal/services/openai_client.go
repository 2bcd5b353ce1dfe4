package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	"github.com/peakform/peakform-backend/internal/platform/ctxutil"
	"github.com/peakform/peakform-backend/internal/platform/envutil"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/repos"
)

// OpenAIClient is the external AI collaborator for the pipeline stages.
// Errors carry their retryability, decided here where the transport facts
// are known, so stages can classify failures without inspecting messages.
type OpenAIClient interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	Model() string
}

// AIError wraps any failed model call. Retryable means a later identical
// call could plausibly succeed (network trouble, 429/5xx after exhausting
// in-client retries).
type AIError struct {
	Retryable bool
	Err       error
}

func (e *AIError) Error() string { return e.Err.Error() }
func (e *AIError) Unwrap() error { return e.Err }

// IsRetryableAI reports whether err represents a transient model failure.
func IsRetryableAI(err error) bool {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}
	return false
}

type openAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
	calls      repos.AICallLogRepo
}

func NewOpenAIClient(log *logger.Logger, calls repos.AICallLogRepo) (OpenAIClient, error) {
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := envutil.Str("OPENAI_BASE_URL", "https://api.openai.com")
	model := envutil.Str("OPENAI_MODEL", "gpt-5.2")

	// generation payloads run long; worker attempt budget is the real cap
	timeout := envutil.Duration("OPENAI_TIMEOUT_SECONDS", 90*time.Second)
	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 2)

	return &openAIClient{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		calls:      calls,
	}, nil
}

func (c *openAIClient) Model() string { return c.model }

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}

func (c *openAIClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *openAIClient) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return &AIError{Retryable: true, Err: ctx.Err()}
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return &AIError{Retryable: false, Err: fmt.Errorf("openai decode error: %w", uErr)}
			}
			return nil
		}

		if !isRetryableErr(err) {
			return &AIError{Retryable: false, Err: err}
		}
		if attempt == c.maxRetries {
			return &AIError{Retryable: true, Err: err}
		}

		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return &AIError{Retryable: true, Err: fmt.Errorf("unreachable retry loop")}
}

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
	Temperature float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func (c *openAIClient) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, &AIError{Retryable: false, Err: errors.New("schemaName required")}
	}
	if schema == nil {
		return nil, &AIError{Retryable: false, Err: errors.New("schema required")}
	}

	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	started := time.Now()
	var resp responsesResponse
	err := c.do(ctx, "POST", "/v1/responses", req, &resp)
	c.recordCall(ctx, schemaName, started, err)
	if err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, &AIError{Retryable: false, Err: fmt.Errorf("model refused: %s", resp.Refusal)}
	}

	var jsonText string
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, part := range item.Content {
				if part.Type == "output_text" && part.Text != "" {
					jsonText += part.Text
				}
			}
		}
	}
	if jsonText == "" {
		return nil, &AIError{Retryable: false, Err: fmt.Errorf("no output_text found in response")}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, &AIError{Retryable: false, Err: fmt.Errorf("failed to parse model JSON: %w", err)}
	}
	return obj, nil
}

// recordCall appends to the AI call ledger; never fails the caller.
func (c *openAIClient) recordCall(ctx context.Context, schemaName string, started time.Time, callErr error) {
	if c.calls == nil {
		return
	}
	row := &domain.AICallLog{
		Stage:      schemaName,
		Model:      c.model,
		Status:     "ok",
		DurationMS: time.Since(started).Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if jd := ctxutil.GetJobData(ctx); jd != nil {
		row.JobID = jd.JobID
		if jd.Stage != "" {
			row.Stage = jd.Stage
		}
	} else {
		row.JobID = uuid.Nil
	}
	if callErr != nil {
		row.Status = "error"
		row.Error = callErr.Error()
	}
	if err := c.calls.Append(dbctx.Context{Ctx: ctx}, row); err != nil {
		c.log.Warn("AI call log append failed", "error", err)
	}
}
