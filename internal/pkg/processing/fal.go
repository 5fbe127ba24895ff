package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFalBaseURL = "https://fal.run"
	defaultFalModelID = "fal-ai/sam-audio/separate"
	maxErrorBody      = 512
)

// Request is the argument set sent to the separation model.
type Request struct {
	AudioURL            string `json:"audio_url"`
	Prompt              string `json:"prompt"`
	Acceleration        string `json:"acceleration"`
	OutputFormat        string `json:"output_format"`
	PredictSpans        bool   `json:"predict_spans"`
	RerankingCandidates int    `json:"reranking_candidates,omitempty"`
}

// Result is the model response. Output URLs point at upstream storage.
type Result struct {
	TargetURL   string
	ResidualURL string
	SampleRate  int
	Duration    float64
}

// Separator calls the external separation model once.
type Separator interface {
	Separate(ctx context.Context, req Request) (*Result, error)
}

// Fetcher downloads one upstream output.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FalClient calls the fal.ai synchronous run endpoint.
type FalClient struct {
	BaseURL    string
	ModelID    string
	APIKey     string
	HTTPClient *http.Client
}

func NewFalClient(baseURL, modelID, apiKey string) *FalClient {
	if baseURL == "" {
		baseURL = defaultFalBaseURL
	}
	if modelID == "" {
		modelID = defaultFalModelID
	}
	return &FalClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ModelID:    strings.Trim(modelID, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type falFile struct {
	URL string `json:"url"`
}

type falResponse struct {
	Target     falFile  `json:"target"`
	Residual   falFile  `json:"residual"`
	SampleRate *int     `json:"sample_rate"`
	Duration   *float64 `json:"duration"`
}

func (c *FalClient) Separate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+c.ModelID, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Key "+c.APIKey)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out falResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode fal response: %w", err)
	}
	res := &Result{
		TargetURL:   out.Target.URL,
		ResidualURL: out.Residual.URL,
		SampleRate:  defaultSampleRate,
	}
	if out.SampleRate != nil && *out.SampleRate > 0 {
		res.SampleRate = *out.SampleRate
	}
	if out.Duration != nil {
		res.Duration = *out.Duration
	}
	return res, nil
}

func (c *FalClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// HTTPFetcher downloads outputs with a plain GET. Bodies larger than
// MaxBytes fail with ErrOutputTooLarge; zero means DefaultMaxOutputBytes.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func NewHTTPFetcher(maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 60 * time.Second}, MaxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: %d bytes declared, limit %d", ErrOutputTooLarge, resp.ContentLength, limit)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrOutputTooLarge, limit)
	}
	return data, nil
}
