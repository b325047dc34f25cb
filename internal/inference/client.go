package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client talks to an Ollama-compatible runtime. It performs no retries;
// failure handling belongs to the caller.
type Client struct {
	baseURL string
	timeout time.Duration
	cpuOnly atomic.Bool
	client  *http.Client
}

// Config configures the inference client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// CPUOnly asks the runtime to keep every layer off the GPU.
	CPUOnly bool
}

// ChatRequest is a single-turn conversation sent to one model.
type ChatRequest struct {
	Model  string
	Prompt string
	// System, when set, is sent as a leading system turn.
	System string
	// Images are base64-encoded payloads for vision-capable models.
	Images []string
}

// ModelList is the decoded response of the list-models endpoint.
type ModelList struct {
	Models []Model `json:"models"`
}

// Model describes one locally available model.
type Model struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails carries family and quantisation metadata.
type ModelDetails struct {
	Format            string `json:"format"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatBody struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

type embedBody struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewClient creates a new client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: t,
		client:  &http.Client{Timeout: t},
	}
	c.cpuOnly.Store(cfg.CPUOnly)
	return c
}

// SetCPUOnly switches GPU offload for subsequent requests.
func (c *Client) SetCPUOnly(v bool) { c.cpuOnly.Store(v) }

func (c *Client) options() map[string]any {
	if c.cpuOnly.Load() {
		return map[string]any{"num_gpu": 0}
	}
	return nil
}

// BaseURL returns the address of the serving process.
func (c *Client) BaseURL() string { return c.baseURL }

// ListModels returns the models installed in the runtime.
func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	var out ModelList
	if err := c.do(ctx, http.MethodGet, "/api/tags", "list models", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends an optional system turn followed by the user turn and returns
// the assistant's text.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt, Images: req.Images})

	body := chatBody{Model: req.Model, Messages: messages, Stream: false, Options: c.options()}
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", "chat", req.Model, body, &out); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}

// Embed returns the L2-normalised embedding of text. An empty vector is
// returned as-is so callers can apply their own fallback.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	var out embedResponse
	if err := c.do(ctx, http.MethodPost, "/api/embeddings", "embed", model, embedBody{Model: model, Prompt: text, Options: c.options()}, &out); err != nil {
		return nil, err
	}
	v := make([]float32, len(out.Embedding))
	for i, x := range out.Embedding {
		v[i] = float32(x)
	}
	return Normalize(v), nil
}

func (c *Client) do(ctx context.Context, method, path, op, model string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &BackendError{Op: op, Model: model, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return classify(op, err)
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// Normalize scales v to unit L2 norm in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
