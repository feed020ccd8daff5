// Package notify implements subscription lifecycle and notification
// delivery: verification/deletion protocols, event filtering, batching
// with aggregation, expiration counters, and retrying/circuit-breaking
// webhook delivery. Grounded on
// original_source/acme/services/NotificationManager.py (full semantics)
// and the teacher's internal/events/notifier.go (WebhookNotifier retry/
// backoff/circuit-breaker constants, HTTP client construction).
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Notifier delivers a single notification payload to a target URI.
type Notifier interface {
	Notify(ctx context.Context, targetURI string, payload map[string]any, eventCategory string) error
}

// NotifierConfig mirrors the teacher's NotifierConfig: bounded retries
// with exponential backoff, then drop — the Open Question resolution
// recorded in SPEC_FULL.md §9.
type NotifierConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	RequestTimeout    time.Duration
	UserAgent         string
	TLSConfig         *tls.Config
}

// DefaultNotifierConfig mirrors the teacher's notifier defaults
// (initialBackoff=1s, maxBackoff=60s, backoffMultiplier=2, maxRetries=3).
func DefaultNotifierConfig() *NotifierConfig {
	return &NotifierConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2,
		RequestTimeout:    10 * time.Second,
		UserAgent:         "acme-cse/1.0",
	}
}

// WebhookNotifier delivers notifications over HTTP POST with per-target
// circuit breaking, grounded on the teacher's WebhookNotifier
// (per-callback-URL gobreaker.CircuitBreaker: MaxRequests:3, Interval:60s,
// Timeout:30s, ReadyToTrip: ConsecutiveFailures>=3).
type WebhookNotifier struct {
	config     *NotifierConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewWebhookNotifier builds a WebhookNotifier.
func NewWebhookNotifier(cfg *NotifierConfig, logger *zap.Logger) *WebhookNotifier {
	if cfg == nil {
		cfg = DefaultNotifierConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{}
	if cfg.TLSConfig != nil {
		transport.TLSClientConfig = cfg.TLSConfig
	}
	return &WebhookNotifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (n *WebhookNotifier) getCircuitBreaker(target string) *gobreaker.CircuitBreaker {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cb, ok := n.breakers[target]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        target,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	n.breakers[target] = cb
	return cb
}

// Notify sends payload to targetURI, retrying with exponential backoff
// and failing attempts short-circuited by a per-target circuit breaker,
// per the teacher's WebhookNotifier.NotifyWithRetry.
func (n *WebhookNotifier) Notify(ctx context.Context, targetURI string, payload map[string]any, eventCategory string) error {
	cb := n.getCircuitBreaker(targetURI)
	backoff := n.config.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= n.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * n.config.BackoffMultiplier)
			if backoff > n.config.MaxBackoff {
				backoff = n.config.MaxBackoff
			}
		}
		_, lastErr = cb.Execute(func() (interface{}, error) {
			return nil, n.sendWebhook(ctx, targetURI, payload, eventCategory)
		})
		if lastErr == nil {
			return nil
		}
		n.logger.Warn("notification delivery attempt failed",
			zap.String("target", targetURI), zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return fmt.Errorf("notification delivery to %s failed after %d attempts: %w", targetURI, n.config.MaxRetries+1, lastErr)
}

func (n *WebhookNotifier) sendWebhook(ctx context.Context, targetURI string, payload map[string]any, eventCategory string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", n.config.UserAgent)
	if eventCategory != "" {
		req.Header.Set("X-M2M-EC", eventCategory)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("target %s responded with status %d", targetURI, resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
