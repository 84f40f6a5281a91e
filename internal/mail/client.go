// Package mail dispatches notification emails through the external
// notifications service. Delivery is an external collaborator: callers in
// best-effort paths must tolerate failure.
package mail

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
)

const sendEmailPath = "/send-email"

// Client posts send-email requests to the notifications service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the given base URL.
func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("mail: notifications url is required")
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type sendRequest struct {
	// Recipients is a bare string for a single recipient and a list
	// otherwise; the notifications service accepts both shapes.
	Recipients any    `json:"recipients"`
	Subject    string `json:"subject"`
	Content    string `json:"content"`
	IsHTML     bool   `json:"is_html"`
}

// Send delivers one message to the given recipients.
func (c *Client) Send(ctx context.Context, recipients []string, subject, content string, html bool) error {
	if len(recipients) == 0 {
		return errors.New("mail: at least one recipient is required")
	}
	req := sendRequest{Subject: subject, Content: content, IsHTML: html}
	if len(recipients) == 1 {
		req.Recipients = recipients[0]
	} else {
		req.Recipients = recipients
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendEmailPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mail: send failed with status %d", resp.StatusCode)
	}
	return nil
}
