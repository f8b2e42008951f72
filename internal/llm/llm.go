// Package llm implements domain.LLM over hosted model APIs, plus the
// failover and rate-limit wrappers the CLI composes around them.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"personabot/internal/domain"
)

const (
	defaultMaxTokens   = 4096
	defaultHTTPTimeout = 120 * time.Second
)

// Models maps the two generation sizes onto concrete model names.
type Models struct {
	Small string
	Large string
}

// For resolves a model argument: "" or "large" selects Large, "small" selects
// Small, anything else is taken as a literal model name.
func (m Models) For(model string) string {
	switch strings.ToLower(model) {
	case "", string(domain.SizeLarge):
		return m.Large
	case string(domain.SizeSmall):
		return m.Small
	default:
		return model
	}
}

// BySize returns the model for size.
func (m Models) BySize(size domain.LLMSize) string {
	if size == domain.SizeSmall {
		return m.Small
	}
	return m.Large
}

// generationError wraps err so callers can match domain.ErrGenerationFailed.
func generationError(provider string, err error) error {
	if errors.Is(err, domain.ErrGenerationFailed) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", provider, domain.ErrGenerationFailed, err)
}

// decodeJSONObject unmarshals the first JSON object in text into out.
// Models sometimes wrap JSON in code fences or prose.
func decodeJSONObject(text string, out any) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

// sharedHTTPClient returns a pooled client for the SDK transports.
func sharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
