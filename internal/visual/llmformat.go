package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/chartbridge/chartbridge/internal/schema"
)

const (
	defaultLLMEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	defaultLLMModel    = "llama-3.3-70b-versatile"
	llmTemperature     = 0.3
	llmMaxTokens       = 500
)

// LLMFormatter runs the format_with_llm step against an OpenAI-compatible
// chat completion endpoint. The API key comes from GROQ_API_KEY.
type LLMFormatter struct {
	Endpoint string
	Model    string
	APIKey   string
	Client   *http.Client
}

func NewLLMFormatter() *LLMFormatter {
	return &LLMFormatter{
		Endpoint: defaultLLMEndpoint,
		Model:    defaultLLMModel,
		APIKey:   os.Getenv("GROQ_API_KEY"),
		Client:   http.DefaultClient,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Format asks the model to reshape input into the target fields and parses
// its answer into a field→content map.
func (l *LLMFormatter) Format(ctx context.Context, input any, fields []schema.TargetFieldSpec) (map[string]string, error) {
	if l.APIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not set")
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: l.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You format clinical data into named fields. For each requested field output a line [field_name] followed by the content on the next lines. Output nothing else."},
			{Role: "user", Content: buildPrompt(input, fields)},
		},
		Temperature: llmTemperature,
		MaxTokens:   llmMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.APIKey)

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm returned HTTP %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	return parseFieldBlocks(parsed.Choices[0].Message.Content, fields), nil
}

func buildPrompt(input any, fields []schema.TargetFieldSpec) string {
	var b strings.Builder
	b.WriteString("Input data:\n")
	switch v := input.(type) {
	case string:
		b.WriteString(v)
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, v[k])
		}
	default:
		fmt.Fprintf(&b, "%v", v)
	}
	b.WriteString("\n\nFields to produce:\n")
	for _, f := range fields {
		if f.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", f.Name)
		}
	}
	return b.String()
}

// parseFieldBlocks locates [field_name] blocks in the model output and maps
// each to the text until the next block. When a field never appears in
// bracket form, a bare "field_name" line is accepted as the block header.
func parseFieldBlocks(text string, fields []schema.TargetFieldSpec) map[string]string {
	out := map[string]string{}
	lines := strings.Split(text, "\n")

	headerAt := func(header string) int {
		for i, line := range lines {
			if strings.TrimSpace(line) == header {
				return i
			}
		}
		return -1
	}
	isAnyHeader := func(line string) bool {
		trimmed := strings.TrimSpace(line)
		for _, f := range fields {
			if trimmed == "["+f.Name+"]" || trimmed == f.Name {
				return true
			}
		}
		return false
	}
	collect := func(start int) string {
		var body []string
		for i := start + 1; i < len(lines); i++ {
			if isAnyHeader(lines[i]) {
				break
			}
			body = append(body, lines[i])
		}
		return strings.TrimSpace(strings.Join(body, "\n"))
	}

	for _, f := range fields {
		idx := headerAt("[" + f.Name + "]")
		if idx < 0 {
			idx = headerAt(f.Name)
		}
		if idx < 0 {
			continue
		}
		out[f.Name] = collect(idx)
	}
	return out
}
