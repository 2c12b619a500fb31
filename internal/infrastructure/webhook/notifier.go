// Package webhook delivers deviation alerts to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/goccy/go-json"
)

// Endpoint is one configured receiver. Levels filters by notification level;
// empty means every level.
type Endpoint struct {
	Name       string        `yaml:"name" json:"name"`
	URL        string        `yaml:"url" json:"url"`
	Secret     string        `yaml:"secret,omitempty" json:"-"`
	Levels     []string      `yaml:"levels,omitempty" json:"levels,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryDelay time.Duration `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
}

// Notifier posts notifications to every matching endpoint. It implements
// events.Notifier.
type Notifier struct {
	endpoints  []Endpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	wg         sync.WaitGroup
}

var _ events.Notifier = (*Notifier)(nil)

func NewNotifier(endpoints []Endpoint, deadLetter *DeadLetterStore) *Notifier {
	return &Notifier{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		deadLetter: deadLetter,
	}
}

// Payload is the JSON body sent to endpoints.
type Payload struct {
	Level     events.NotificationLevel `json:"level"`
	Title     string                   `json:"title"`
	Message   string                   `json:"message"`
	Timestamp time.Time                `json:"timestamp"`
}

// Notify queues delivery to every matching endpoint and returns immediately.
// Failed deliveries end up in the dead letter store.
func (n *Notifier) Notify(ctx context.Context, level events.NotificationLevel, title, message string) error {
	body, err := json.Marshal(Payload{Level: level, Title: title, Message: message, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	for _, ep := range n.endpoints {
		if !matchesLevel(ep, level) {
			continue
		}
		n.wg.Add(1)
		go func(ep Endpoint) {
			defer n.wg.Done()
			n.deliver(context.WithoutCancel(ctx), ep, level, body)
		}(ep)
	}
	return nil
}

// Wait blocks until every queued delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func matchesLevel(ep Endpoint, level events.NotificationLevel) bool {
	if len(ep.Levels) == 0 {
		return true
	}
	for _, l := range ep.Levels {
		if events.NotificationLevel(l) == level {
			return true
		}
	}
	return false
}

func (n *Notifier) deliver(ctx context.Context, ep Endpoint, level events.NotificationLevel, body []byte) {
	maxRetries := ep.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := ep.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	retryer := retry.New[struct{}](retry.Config{
		MaxAttempts:   maxRetries,
		InitialDelay:  retryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.send(ctx, ep, body)
	})
	if err == nil || n.deadLetter == nil {
		return
	}
	_ = n.deadLetter.Append(DeadLetter{
		Timestamp: time.Now(),
		Endpoint:  ep.Name,
		URL:       ep.URL,
		Level:     string(level),
		Payload:   string(body),
		Error:     err.Error(),
		Attempts:  maxRetries,
	})
}

func (n *Notifier) send(ctx context.Context, ep Endpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Kalk-Webhook/1.0")

	if ep.Secret != "" {
		req.Header.Set("X-Kalk-Signature", sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// sign computes HMAC-SHA256 of the payload using the secret.
func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
