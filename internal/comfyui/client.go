package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"comfy-bridge/internal/config"
	apperrors "comfy-bridge/internal/errors"
)

// Client handles communication with the engine's HTTP and WebSocket API
type Client struct {
	baseURL          string
	wsURL            string
	httpClient       *http.Client
	handshakeTimeout time.Duration
	readTimeout      time.Duration
	logger           *slog.Logger
}

// NewClient creates a new engine client
func NewClient(cfg config.EngineConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		wsURL:   cfg.WebSocketURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		handshakeTimeout: cfg.HandshakeTimeout,
		readTimeout:      cfg.ReadTimeout,
		logger:           logger,
	}
}

// Submit posts a job graph to the engine and returns its prompt id.
// A single attempt is made; failures are classified as unreachable,
// validation or unknown submission errors.
func (c *Client) Submit(ctx context.Context, graph JobGraph, clientID string) (string, error) {
	req := PromptRequest{
		Prompt:   graph,
		ClientID: clientID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyRequestError(fmt.Errorf("send prompt: %w", err), apperrors.ErrUnknownSubmission)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.WithCause(apperrors.ErrUnknownSubmission, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusBadRequest {
		return "", apperrors.WithCause(apperrors.ErrValidation, fmt.Errorf("prompt rejected: %s", describeRejection(respBody)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperrors.WithCause(apperrors.ErrUnknownSubmission,
			fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var promptResp PromptResponse
	if err := json.Unmarshal(respBody, &promptResp); err != nil {
		return "", apperrors.WithCause(apperrors.ErrUnknownSubmission, fmt.Errorf("unmarshal response: %w", err))
	}

	if len(promptResp.nodeErrors()) > 0 || promptResp.Error != nil {
		return "", apperrors.WithCause(apperrors.ErrValidation, fmt.Errorf("prompt rejected: %s", describeRejection(respBody)))
	}
	if promptResp.PromptID == "" {
		return "", apperrors.WithCause(apperrors.ErrUnknownSubmission, errors.New("response carried no prompt_id"))
	}

	return promptResp.PromptID, nil
}

// GetQueue fetches the engine's running and pending queues
func (c *Client) GetQueue(ctx context.Context) (*QueueResponse, error) {
	var queue QueueResponse
	if err := c.getJSON(ctx, "/queue", &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

// GetHistory retrieves the execution history for a prompt
func (c *Client) GetHistory(ctx context.Context, promptID string) (HistoryResponse, error) {
	var history HistoryResponse
	if err := c.getJSON(ctx, "/history/"+url.PathEscape(promptID), &history); err != nil {
		return nil, err
	}
	return history, nil
}

// GetImage downloads an output image and returns its bytes and content type
func (c *Client) GetImage(ctx context.Context, img ImageOutput) ([]byte, string, error) {
	params := url.Values{}
	params.Set("filename", img.Filename)
	if img.Subfolder != "" {
		params.Set("subfolder", img.Subfolder)
	}
	if img.Type != "" {
		params.Set("type", img.Type)
	}

	reqURL := fmt.Sprintf("%s/view?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", classifyRequestError(fmt.Errorf("send request: %w", err), apperrors.ErrUnknownTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("server returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Interrupt asks the engine to stop the currently executing prompt.
// The engine treats it as advisory.
func (c *Client) Interrupt(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interrupt", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyRequestError(fmt.Errorf("send interrupt: %w", err), apperrors.ErrUnknownTransport)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}

// CheckHealth verifies the engine is accessible
func (c *Client) CheckHealth(ctx context.Context) (*SystemStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var stats SystemStats
	if err := c.getJSON(ctx, "/system_stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyRequestError(fmt.Errorf("get %s: %w", path, err), apperrors.ErrUnknownTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.WithCause(apperrors.ErrUnknownTransport,
			fmt.Errorf("get %s: server returned %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.WithCause(apperrors.ErrUnknownTransport, fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

// classifyRequestError maps dial failures to ErrEngineUnreachable and
// everything else to fallback.
func classifyRequestError(err error, fallback *apperrors.UserError) error {
	if isUnreachable(err) {
		return apperrors.WithCause(apperrors.ErrEngineUnreachable, err)
	}
	return apperrors.WithCause(fallback, err)
}

func isUnreachable(err error) bool {
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

// describeRejection renders the engine's rejection body for server-side logs
func describeRejection(body []byte) string {
	var resp PromptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return strings.TrimSpace(string(body))
	}

	var parts []string
	if resp.Error != nil {
		parts = append(parts, fmt.Sprintf("%s: %s", resp.Error.Type, resp.Error.Message))
	}
	for nodeID, nodeErr := range resp.nodeErrors() {
		for _, e := range nodeErr.Errors {
			parts = append(parts, fmt.Sprintf("node %s (%s): %s", nodeID, nodeErr.ClassType, e.Message))
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(string(body))
	}
	return strings.Join(parts, "; ")
}
