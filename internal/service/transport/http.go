package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
)

const (
	// CompletionPath is the proxy route that accepts completion requests.
	CompletionPath = "/claude"

	// CredentialHeader carries the caller's API key.
	CredentialHeader = "x-api-key"

	maxResponseSize = 10 * 1024 * 1024
)

// CompletionRequest is the body posted to the completion endpoint.
type CompletionRequest struct {
	Model     string      `json:"model"`
	Messages  []chat.Turn `json:"messages"`
	MaxTokens int         `json:"max_tokens"`
}

// CompletionResponse is the subset of the reply body that is read.
type CompletionResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// HTTPBackend posts to {baseURL}/claude.
type HTTPBackend struct {
	endpoint  string
	model     string
	maxTokens int
	client    *http.Client
}

// NewHTTPBackend returns a backend for the proxy at baseURL. A nil client
// uses a client with a two minute timeout.
func NewHTTPBackend(baseURL, model string, maxTokens int, client *http.Client) *HTTPBackend {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPBackend{
		endpoint:  strings.TrimRight(baseURL, "/") + CompletionPath,
		model:     model,
		maxTokens: maxTokens,
		client:    client,
	}
}

func (b *HTTPBackend) Complete(ctx context.Context, turns []chat.Turn, credential string) (string, error) {
	body, err := json.Marshal(CompletionRequest{Model: b.model, Messages: turns, MaxTokens: b.maxTokens})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CredentialHeader, credential)

	resp, err := b.client.Do(req)
	if err != nil {
		if isConnectivity(err) {
			return "", fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var decoded CompletionResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(decoded.Content) == 0 {
		return "", errors.New("completion response has no content")
	}
	return decoded.Content[0].Text, nil
}

func isConnectivity(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
