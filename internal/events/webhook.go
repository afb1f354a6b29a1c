package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

// WebhookPublisher POSTs each event as JSON to every configured URL.
type WebhookPublisher struct {
	URLs []string
	HTTP *http.Client
}

func NewWebhookPublisher(urls []string, timeout time.Duration) *WebhookPublisher {
	clean := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, u)
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookPublisher{URLs: clean, HTTP: &http.Client{Timeout: timeout}}
}

func (p *WebhookPublisher) Publish(ctx context.Context, evt models.DomainEvent) error {
	if p == nil || len(p.URLs) == 0 {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	var errs []error
	for _, url := range p.URLs {
		if err := p.send(ctx, url, evt.Type, b); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

func (p *WebhookPublisher) send(ctx context.Context, url, eventType string, body []byte) error {
	client := p.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Paynode-Event", eventType)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode}
	}
	return nil
}

type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return "webhook http status " + http.StatusText(e.StatusCode)
}
