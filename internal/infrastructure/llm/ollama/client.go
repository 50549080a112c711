package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// DescriptionRefiner rewrites raw invoice descriptions into clean trade
// names for the tariff classifier.
type DescriptionRefiner struct {
	client *Client
}

func NewDescriptionRefiner(client *Client) *DescriptionRefiner {
	return &DescriptionRefiner{client: client}
}

func (r *DescriptionRefiner) RefineBatch(ctx context.Context, descriptions []string) (map[string]string, error) {
	if len(descriptions) == 0 {
		return map[string]string{}, nil
	}

	respText, err := r.client.generateJSON(ctx, buildRefinePrompt(descriptions))
	if err != nil {
		return nil, err
	}

	var numbered map[string]string
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &numbered); err != nil {
		return nil, fmt.Errorf("parse refine json: %w", err)
	}

	out := make(map[string]string, len(descriptions))
	for key, refined := range numbered {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < 1 || idx > len(descriptions) {
			continue
		}
		if refined = strings.TrimSpace(refined); refined != "" {
			out[descriptions[idx-1]] = refined
		}
	}
	return out, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	in := generateRequest{Model: c.model, Prompt: prompt, Format: "json"}

	var out generateResponse
	call := func(ctx context.Context) error {
		var err error
		out, err = c.generate(ctx, in)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", resilience.WrapTemporary("ollama generate", err, resilience.ClassifyHTTPError)
	}
	return strings.TrimSpace(out.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
