package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultMailEndpoint = "https://api.resend.com/emails"

// MailSender posts mail to a Resend-compatible HTTP email API.
type MailSender struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

// NewMailSender creates a MailSender. An empty endpoint selects the Resend
// API.
func NewMailSender(endpoint, apiKey, from string) *MailSender {
	if endpoint == "" {
		endpoint = defaultMailEndpoint
	}
	return &MailSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send delivers one message. Any non-2xx response is an error.
func (s *MailSender) Send(ctx context.Context, m Mail) error {
	payload, err := json.Marshal(mailRequest{
		From:    s.from,
		To:      m.To,
		Subject: m.Subject,
		HTML:    m.Body,
	})
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
