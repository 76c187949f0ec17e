// Package webhook delivers notifications to an HTTP endpoint as signed JSON
// payloads.
package webhook

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
	"net/url"
	"strings"
	"time"

	"github.com/coelhotv/meus-remedios/internal/platform/notification"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	TimestampHeader = "X-Webhook-Timestamp"
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "sha256=<hex>" or bare hex signature.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}

// ValidateURL accepts absolute http and https URLs.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", rawURL)
	}
	return nil
}

type Option func(*Sender)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.client = c }
}

// WithRetryDelays sets the waits between attempts. len(delays)+1 attempts
// are made in total.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(s *Sender) { s.delays = delays }
}

// Sender posts notifications to a single endpoint. It satisfies
// notification.Sender.
type Sender struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
	now    func() time.Time
}

func NewSender(rawURL, secret string, opts ...Option) (*Sender, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	s := &Sender{
		url:    rawURL,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{time.Second, 5 * time.Second},
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type payload struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	TemplateID string            `json:"template_id,omitempty"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Send delivers n, retrying on transport errors and 5xx or 429 responses.
// Other 4xx responses fail immediately.
func (s *Sender) Send(ctx context.Context, n *notification.Notification) error {
	body, err := json.Marshal(payload{
		ID:         n.ID,
		UserID:     n.UserID,
		TemplateID: n.TemplateID,
		Subject:    n.Subject,
		Body:       n.Body,
		Data:       n.Data,
		CreatedAt:  n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(s.delays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery cancelled after %d attempt(s): %w", attempt, lastErr)
			case <-time.After(s.delays[attempt-1]):
			}
		}
		retry, err := s.post(ctx, n, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (s *Sender) post(ctx context.Context, n *notification.Notification, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, n.TemplateID)
	req.Header.Set(TimestampHeader, s.now().UTC().Format(time.RFC3339))
	if s.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+SignPayload(body, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook responded %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook rejected notification: %d", resp.StatusCode)
	}
}
