package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultOriginator is used when no sender name is configured.
const DefaultOriginator = "3700"

// Config holds the PlayMobile gateway credentials.
type Config struct {
	URL        string
	Login      string
	Password   string
	Prefix     string
	Originator string
}

// Recipient is one text addressed to several phone numbers.
type Recipient struct {
	PhoneNumbers []string `json:"phone_numbers"`
	Message      string   `json:"message"`
}

type content struct {
	Text string `json:"text"`
}

type smsBody struct {
	Originator string  `json:"originator"`
	Content    content `json:"content"`
}

type message struct {
	Recipient string  `json:"recipient"`
	MessageID string  `json:"message-id"`
	SMS       smsBody `json:"sms"`
}

type payload struct {
	Messages []message `json:"messages"`
}

// Client posts messages to the PlayMobile broker API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Originator == "" {
		cfg.Originator = DefaultOriginator
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

func (c *Client) message(phone, text string) message {
	return message{
		Recipient: strings.TrimPrefix(strings.TrimSpace(phone), "+"),
		MessageID: fmt.Sprintf("%s_%s", c.cfg.Prefix, uuid.NewString()[:8]),
		SMS: smsBody{
			Originator: c.cfg.Originator,
			Content:    content{Text: text},
		},
	}
}

// SendSingle sends text to one phone number.
func (c *Client) SendSingle(ctx context.Context, phone, text string) error {
	return c.send(ctx, []message{c.message(phone, text)})
}

// SendMass sends the same text to every phone number in one request.
func (c *Client) SendMass(ctx context.Context, phones []string, text string) error {
	msgs := make([]message, 0, len(phones))
	for _, p := range phones {
		msgs = append(msgs, c.message(p, text))
	}
	return c.send(ctx, msgs)
}

// SendMassIndividual sends each recipient its own text, all in one request.
func (c *Client) SendMassIndividual(ctx context.Context, recipients []Recipient) error {
	var msgs []message
	for _, r := range recipients {
		for _, p := range r.PhoneNumbers {
			msgs = append(msgs, c.message(p, r.Message))
		}
	}
	return c.send(ctx, msgs)
}

func (c *Client) send(ctx context.Context, msgs []message) error {
	if len(msgs) == 0 {
		return nil
	}
	if !c.Enabled() {
		return fmt.Errorf("sms: api url not configured")
	}
	body, err := json.Marshal(payload{Messages: msgs})
	if err != nil {
		return fmt.Errorf("sms: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Login, c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
