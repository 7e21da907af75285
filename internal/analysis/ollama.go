package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rfontain/glimpse/internal/activity"
	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/errors"
	"github.com/rfontain/glimpse/internal/localai"
)

// Local generation knobs. num_predict bounds the reply; num_ctx must
// hold the prompt plus the attached images.
const (
	ollamaTemperature = 0.3
	ollamaNumPredict  = 512
	ollamaNumCtx      = 8192

	ollamaRetryDelay = 3 * time.Second
)

// OllamaProvider talks to an Ollama-compatible chat endpoint. A local
// model under VRAM pressure can answer with an empty body; that case
// is retried exactly once after a fixed delay, then surfaced.
type OllamaProvider struct {
	host   string
	model  string
	client *http.Client

	// ensure runs before each request when autostart is configured.
	ensure func(ctx context.Context) error
	// sleep is the retry delay; tests swap it for a recorder.
	sleep func(ctx context.Context, d time.Duration)
}

func NewOllamaProvider(cfg *config.Config) *OllamaProvider {
	p := &OllamaProvider{
		host:   strings.TrimRight(cfg.OllamaHost, "/"),
		model:  cfg.OllamaModel,
		client: &http.Client{Timeout: 2 * time.Minute},
		sleep:  sleepFor,
	}
	if cfg.OllamaAutostart {
		p.ensure = localai.NewSupervisor(cfg.OllamaBinary, cfg.OllamaHost).EnsureRunning
	}
	return p
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Analyze posts one chat request with the images attached base64 and
// the response schema in the structured format field.
func (p *OllamaProvider) Analyze(ctx context.Context, req Request) (*Result, error) {
	if len(req.Images) == 0 {
		return nil, errors.NewInvalidRequest("no images to analyze")
	}
	if p.ensure != nil {
		if err := p.ensure(ctx); err != nil {
			return nil, err
		}
	}

	images := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		data, _, err := EncodeImage(img.Path, req.ImageMode)
		if err != nil {
			return nil, errors.NewProviderFailed(ProviderOllama, "read image: "+err.Error())
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}

	prompt := localSinglePrompt(req)
	if req.Multi() {
		prompt = localMultiPrompt(req)
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt, Images: images}},
		Stream:   false,
		Format:   responseSchema(req.Multi()),
		Options: map[string]any{
			"temperature": ollamaTemperature,
			"num_predict": ollamaNumPredict,
			"num_ctx":     ollamaNumCtx,
		},
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	const maxAttempts = 2
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		content, err := p.chat(ctx, body)
		if err != nil {
			return nil, err
		}

		if strings.TrimSpace(content) == "" {
			if attempt < maxAttempts {
				log.Printf("analysis: %s returned empty response, retrying once", p.model)
				p.sleep(ctx, ollamaRetryDelay)
				continue
			}
			return nil, errors.NewProviderFailed(ProviderOllama, "empty response after retry (possible VRAM pressure)")
		}

		res, err := ParseResult(content)
		if err != nil {
			return nil, errors.NewProviderFailed(ProviderOllama, err.Error())
		}
		return res, nil
	}
	return nil, errors.NewProviderFailed(ProviderOllama, "analysis failed")
}

// chat posts one /api/chat request and returns the reply content.
// Connection failures mean the server is unavailable; a non-2xx status
// is a provider failure and is never retried.
func (p *OllamaProvider) chat(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", errors.NewProviderUnavailable(ProviderOllama, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.NewProviderFailed(ProviderOllama,
			fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(detail))))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", errors.NewProviderFailed(ProviderOllama, "decode response: "+err.Error())
	}
	return chatResp.Message.Content, nil
}

// responseSchema is the structured-output contract sent in the format
// field. Multi-monitor requests add the monitor_summaries object.
func responseSchema(multi bool) json.RawMessage {
	properties := map[string]any{
		"task_title":       map[string]any{"type": "string"},
		"task_description": map[string]any{"type": "string"},
		"category":         map[string]any{"type": "string", "enum": activity.Categories},
		"reasoning":        map[string]any{"type": "string"},
		"is_new_task":      map[string]any{"type": "boolean"},
	}
	required := []string{"task_title", "task_description", "category", "reasoning", "is_new_task"}
	if multi {
		properties["monitor_summaries"] = map[string]any{"type": "object"}
		required = append(required, "monitor_summaries")
	}

	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	return schema
}

func sleepFor(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
