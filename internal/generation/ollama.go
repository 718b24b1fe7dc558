package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"handbook/internal/domain"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func messages(p domain.Prompt) []chatMessage {
	var out []chatMessage
	if p.System != "" {
		out = append(out, chatMessage{Role: "system", Content: p.System})
	}
	return append(out, chatMessage{Role: "user", Content: p.User})
}

// Ollama calls the /api/chat endpoint of an Ollama server without streaming.
type Ollama struct {
	host       string
	model      string
	httpClient *http.Client
}

func NewOllama(host, model string, timeout time.Duration) *Ollama {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Ollama{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (o *Ollama) Name() string { return "ollama:" + o.model }

func (o *Ollama) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":    o.model,
		"stream":   false,
		"messages": messages(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama chat: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Message chatMessage `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return out.Message.Content, nil
}

// Healthy checks if Ollama is reachable.
func (o *Ollama) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
