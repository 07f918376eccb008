package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
	"github.com/kirillkom/document-autopilot/internal/infrastructure/resilience"
)

// Client serves the Inference port against an Ollama server. Requests go
// through a shared rate limiter and the resilience executor; malformed model
// output always surfaces as an ErrInference, never a crash.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	RequestsPerMinute  int
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rpm := options.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := c.generateText(ctx, "summarize", buildSummaryPrompt(text))
	if err != nil {
		return "", wrapInferenceError("summarize", err)
	}
	if resp == "" {
		return "", domain.WrapError(domain.ErrInference, "summarize",
			fmt.Errorf("model returned empty summary"))
	}
	return resp, nil
}

func (c *Client) Classify(ctx context.Context, text, summary string, categories []domain.Category) (domain.Classification, error) {
	resp, err := c.generateJSON(ctx, "classify", buildClassificationPrompt(text, summary, categories))
	if err != nil {
		return domain.Classification{}, wrapInferenceError("classify", err)
	}

	var result domain.Classification
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &result); err != nil {
		return domain.Classification{}, domain.WrapError(domain.ErrInference, "parse classification json", err)
	}
	if result.CategoryName == "" {
		return domain.Classification{}, domain.WrapError(domain.ErrInference, "classify",
			fmt.Errorf("model returned no category"))
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return domain.Classification{}, domain.WrapError(domain.ErrInference, "classify",
			fmt.Errorf("confidence %v out of range", result.Confidence))
	}
	if result.SchemaVersion == 0 {
		result.SchemaVersion = 1
	}
	return result, nil
}

func (c *Client) DecideWorkflow(ctx context.Context, summary, category string) ([]domain.WorkflowAction, error) {
	resp, err := c.generateJSON(ctx, "decide_workflow", buildWorkflowPrompt(summary, category))
	if err != nil {
		return nil, wrapInferenceError("decide workflow", err)
	}

	var result struct {
		Actions []domain.WorkflowAction `json:"actions"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &result); err != nil {
		return nil, domain.WrapError(domain.ErrInference, "parse workflow json", err)
	}
	for _, action := range result.Actions {
		if !action.Kind.Valid() {
			return nil, domain.WrapError(domain.ErrInference, "decide workflow",
				fmt.Errorf("unknown action kind %q", action.Kind))
		}
	}
	return result.Actions, nil
}

func (c *Client) generateJSON(ctx context.Context, operation, prompt string) (string, error) {
	return c.generate(ctx, operation, map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
}

func (c *Client) generateText(ctx context.Context, operation, prompt string) (string, error) {
	return c.generate(ctx, operation, map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
	})
}

func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var response struct {
		Response string `json:"response"`
	}
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &response, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
