package notify

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

	"installbot/internal/config"
)

// ErrNotConfigured is returned by transports that have no endpoint set.
var ErrNotConfigured = errors.New("notification transport not configured")

// MessageSender delivers a text message to one recipient address and returns the provider id.
type MessageSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

type sendResponse struct {
	Success    bool   `json:"success"`
	MessageSID string `json:"message_sid"`
	Error      string `json:"error"`
}

// HTTPMessageSender posts messages to the outbound messaging API.
type HTTPMessageSender struct {
	url   string
	token string
	from  string
	http  *http.Client
}

func NewHTTPMessageSender(cfg config.OutboundConfig, timeout time.Duration) *HTTPMessageSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMessageSender{
		url:   strings.TrimSpace(cfg.URL),
		token: strings.TrimSpace(cfg.Token),
		from:  strings.TrimSpace(cfg.From),
		http:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPMessageSender) Configured() bool {
	return s != nil && s.url != ""
}

// Address formats a bare number the same way as the sender's own address.
func (s *HTTPMessageSender) Address(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(s.from, "whatsapp:") && !strings.HasPrefix(number, "whatsapp:") {
		return "whatsapp:" + number
	}
	return number
}

func (s *HTTPMessageSender) Send(ctx context.Context, to, body string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return "", errors.New("recipient is required")
	}

	raw, err := json.Marshal(sendRequest{To: s.Address(to), From: s.from, Message: body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("outbound api returned %d", resp.StatusCode)
	}

	var out sendResponse
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode outbound response: %w", err)
	}
	if !out.Success && out.Error != "" {
		return "", fmt.Errorf("outbound api: %s", out.Error)
	}
	return out.MessageSID, nil
}
