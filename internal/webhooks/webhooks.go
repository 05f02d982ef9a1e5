// Package webhooks delivers submission notifications to external
// audit/monitoring subscribers. Subscribers are declared in configuration;
// each delivery is signed with the subscriber's HMAC secret so receivers can
// authenticate the origin.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscriber is one configured notification endpoint. An empty Events list
// subscribes to everything.
type Subscriber struct {
	URL    string   `mapstructure:"url"    json:"url"`
	Secret string   `mapstructure:"secret" json:"secret"`
	Events []string `mapstructure:"events" json:"events"`
}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher fans submission events out to configured subscribers.
// It implements ledger.EventSink.
type Dispatcher struct {
	subscribers []Subscriber
	httpClient  *http.Client
	onMetrics   MetricsRecorder
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher for the configured subscribers.
func NewDispatcher(subscribers []Subscriber, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		subscribers: subscribers,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// Publish implements ledger.EventSink. Delivery happens on background
// goroutines; the caller is never blocked and failures never propagate.
func (d *Dispatcher) Publish(_ context.Context, eventType string, payload any) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	for _, sub := range d.subscribers {
		if !sub.wants(eventType) {
			continue
		}
		go d.deliver(sub, event)
	}
}

func (s Subscriber) wants(eventType string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// deliver sends one event to one subscriber with retries.
// Backoff: immediate, 1s, 5s.
func (d *Dispatcher) deliver(sub Subscriber, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	signature := signPayload(body, sub.Secret)

	delays := []time.Duration{0, time.Second, 5 * time.Second}
	for attempt, delay := range delays {
		time.Sleep(delay)

		success, status, errMsg := d.post(sub.URL, body, signature)
		if d.onMetrics != nil {
			d.onMetrics(success)
		}
		if success {
			d.logger.Debug("webhook delivered",
				zap.String("url", sub.URL),
				zap.String("event", event.Type),
				zap.Int("status", status),
			)
			return
		}
		d.logger.Warn("webhook delivery failed",
			zap.String("url", sub.URL),
			zap.String("event", event.Type),
			zap.Int("attempt", attempt+1),
			zap.String("error", errMsg),
		)
	}
}

// post performs a single signed HTTP delivery.
func (d *Dispatcher) post(url string, body []byte, signature string) (bool, int, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TrustChain-Signature", signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes an HMAC-SHA256 signature over the delivery body.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-TrustChain-Signature header against
// the shared secret. Exposed for subscriber implementations and tests.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}
