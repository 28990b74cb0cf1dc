// Package mailer wraps the managed transactional email API used for portal
// notifications and newsletter delivery. One batch call sends one newsletter
// chunk; per-recipient outcomes are reported back to the caller.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	sendPath  = "/v1/send"
	batchPath = "/v1/send/batch"

	defaultTimeout = 30 * time.Second
)

var (
	ErrMissingBaseURL = errors.New("mailer: base URL required")
	ErrMissingAPIKey  = errors.New("mailer: API key required")
	ErrMissingSender  = errors.New("mailer: from address required")
)

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	From    string `json:"from"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// Result reports the outcome for one recipient of a batch call.
type Result struct {
	Recipient string
	Err       error
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	From       string
	ReplyTo    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the email-sending API.
type Client struct {
	baseURL    string
	apiKey     string
	from       string
	replyTo    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a mailer client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, ErrMissingSender
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		replyTo:    cfg.ReplyTo,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// From returns the configured sender address.
func (c *Client) From() string {
	return c.from
}

// Send delivers a single email.
func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	message := Message{To: to, Subject: subject, HTML: html, From: c.from, ReplyTo: c.replyTo}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("mailer: encode message: %w", err)
	}
	response, err := c.post(ctx, sendPath, body)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		return c.statusError(response)
	}
	return nil
}

type batchRequestPayload struct {
	Messages []Message `json:"messages"`
}

type batchResponsePayload struct {
	Results []batchResultPayload `json:"results"`
}

type batchResultPayload struct {
	To     string `json:"to"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SendBatch delivers one chunk of newsletter messages in a single API call and
// returns a per-recipient outcome. A transport-level failure fails the whole
// chunk: every recipient receives the same error.
func (c *Client) SendBatch(ctx context.Context, recipients []string, subject, html string) []Result {
	results := make([]Result, 0, len(recipients))
	if len(recipients) == 0 {
		return results
	}

	payload := batchRequestPayload{Messages: make([]Message, 0, len(recipients))}
	for _, recipient := range recipients {
		payload.Messages = append(payload.Messages, Message{
			To:      recipient,
			Subject: subject,
			HTML:    html,
			From:    c.from,
			ReplyTo: c.replyTo,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return c.failAll(recipients, fmt.Errorf("mailer: encode batch: %w", err))
	}

	response, err := c.post(ctx, batchPath, body)
	if err != nil {
		return c.failAll(recipients, err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		return c.failAll(recipients, c.statusError(response))
	}

	var decoded batchResponsePayload
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return c.failAll(recipients, fmt.Errorf("mailer: decode batch response: %w", err))
	}

	outcomes := make(map[string]batchResultPayload, len(decoded.Results))
	for _, result := range decoded.Results {
		outcomes[strings.ToLower(result.To)] = result
	}
	for _, recipient := range recipients {
		outcome, ok := outcomes[strings.ToLower(recipient)]
		if !ok {
			results = append(results, Result{Recipient: recipient, Err: errors.New("mailer: recipient missing from batch response")})
			continue
		}
		if outcome.Status != "" && !strings.EqualFold(outcome.Status, "sent") && !strings.EqualFold(outcome.Status, "queued") {
			message := outcome.Error
			if message == "" {
				message = outcome.Status
			}
			results = append(results, Result{Recipient: recipient, Err: fmt.Errorf("mailer: %s", message)})
			continue
		}
		results = append(results, Result{Recipient: recipient})
	}
	return results
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mailer: build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("mail API call failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("mailer: request failed: %w", err)
	}
	return response, nil
}

func (c *Client) statusError(response *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
	c.logger.Warn("mail API rejected request",
		zap.Int("status", response.StatusCode),
		zap.ByteString("body", detail))
	return fmt.Errorf("mailer: unexpected status %d", response.StatusCode)
}

func (c *Client) failAll(recipients []string, err error) []Result {
	results := make([]Result, 0, len(recipients))
	for _, recipient := range recipients {
		results = append(results, Result{Recipient: recipient, Err: err})
	}
	return results
}
