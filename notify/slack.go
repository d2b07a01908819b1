package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Slack posts to an incoming webhook.
type Slack struct {
	webhook string
	client  *http.Client
}

func NewSlack(webhook string) (*Slack, error) {
	if webhook == "" {
		return nil, errors.New("slack webhook url is required")
	}
	return &Slack{webhook: webhook, client: &http.Client{Timeout: 3 * time.Second}}, nil
}

func (s *Slack) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{"text": msg.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack: http %d", resp.StatusCode)
	}
	return nil
}
