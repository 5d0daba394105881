// Package email sends admin mail through the Postmark API.
package email

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/dukerupert/rewardledger/internal/moderation"
)

const postmarkURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

type Client struct {
	serverToken string
	fromEmail   string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// Send mails a plain-text message; the HTML part is the escaped text.
func (c *Client) Send(to []string, subject, text, tag string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return errors.New("send email: no recipients")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       strings.Join(to, ","),
		Subject:  subject,
		TextBody: text,
		HtmlBody: "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>",
		Tag:      tag,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}

// DigestMailer forwards review-queue digests to the admin mailboxes.
// Other notifications are ignored.
type DigestMailer struct {
	client *Client
	to     []string
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewDigestMailer(c *Client, to []string, logger *slog.Logger) *DigestMailer {
	return &DigestMailer{client: c, to: to, logger: logger}
}

func (m *DigestMailer) Notify(n moderation.Notification) {
	if n.Entity != moderation.EntityDigest || !n.Admins {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.client.Send(m.to, "Reward ledger review queue", n.Text, "digest"); err != nil {
			m.logger.Error("mail digest", "error", err)
			return
		}
		m.logger.Info("digest mailed", "recipients", len(m.to))
	}()
}

// Wait blocks until in-flight mails finish.
func (m *DigestMailer) Wait() {
	m.wg.Wait()
}
