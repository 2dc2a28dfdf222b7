package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"basegraph.app/docwatch/internal/model"
)

// ErrUndeliverable marks failures that no retry can fix, such as a 4xx
// answer from the receiver. Such messages go straight to the DLQ.
var ErrUndeliverable = errors.New("notification undeliverable")

const signatureHeader = "X-Docwatch-Signature"

type WebhookConfig struct {
	// DefaultURL receives notifications whose target is not an http(s) URL,
	// e.g. chat or user ids that a downstream relay resolves.
	DefaultURL string
	Secret     string
	Timeout    time.Duration
}

// WebhookTransport POSTs notifications as JSON. Consecutive failures open a
// circuit breaker so a dead receiver is not hammered by every retry.
type WebhookTransport struct {
	cfg     WebhookConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

type webhookPayload struct {
	Target       string             `json:"target"`
	Notification model.Notification `json:"notification"`
}

func NewWebhookTransport(cfg WebhookConfig, httpClient *http.Client) *WebhookTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A receiver rejecting one payload says nothing about its health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUndeliverable)
		},
	})

	return &WebhookTransport{cfg: cfg, http: httpClient, breaker: breaker}
}

func (t *WebhookTransport) Deliver(ctx context.Context, target string, n model.Notification) error {
	url := t.cfg.DefaultURL
	if isHTTPURL(target) {
		url = target
	}
	if url == "" {
		return fmt.Errorf("%w: no webhook url for target %q", ErrUndeliverable, target)
	}

	body, err := json.Marshal(webhookPayload{Target: target, Notification: n})
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrUndeliverable, err)
	}

	_, err = t.breaker.Execute(func() (interface{}, error) {
		return nil, t.post(ctx, url, body)
	})
	return err
}

func (t *WebhookTransport) post(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrUndeliverable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Secret != "" {
		req.Header.Set(signatureHeader, Sign(t.cfg.Secret, body))
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: webhook returned %d", ErrUndeliverable, resp.StatusCode)
	default:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}

// Sign returns the hex HMAC-SHA256 of body, sent in X-Docwatch-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
