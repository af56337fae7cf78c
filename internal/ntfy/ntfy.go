// Package ntfy publishes push notifications, optionally with an attached
// image uploaded to the same server beforehand.
package ntfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

const (
	// DefaultPriority is the ntfy priority used when a message sets none.
	DefaultPriority = "default"

	attachmentName = "memory.jpg"
	requestTimeout = 30 * time.Second

	// The server throttles aggressive publishers; stay under its default
	// per-visitor budget.
	requestsPerSecond = 3
	requestBurst      = 3
)

// Credentials carry one user's basic-auth pair. The zero value means
// anonymous access.
type Credentials struct {
	Username string
	Password string
}

// Message is one notification to publish.
type Message struct {
	Topic    string
	Title    string
	Body     string
	Tags     []string
	Priority string
	Click    string
	Attach   string
}

// Client talks to a single ntfy server. One client is shared across users
// so the rate limiter covers the whole process.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewClient(baseURL string, log logx.Logger) *Client {
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		log:     log,
	}
}

// Upload PUTs image bytes to the server and returns the attachment URL the
// server minted for them. A rejected upload is not fatal: the notification
// can still go out without its picture, so non-2xx replies return an empty
// URL and no error.
func (c *Client) Upload(ctx context.Context, creds Credentials, data []byte) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	name := fmt.Sprintf("upload-%d", time.Now().Unix())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/"+name, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Filename", attachmentName)
	if creds.Username != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ntfy: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("attachment upload rejected", logx.Int("status", resp.StatusCode))
		return "", nil
	}

	var reply struct {
		Attachment struct {
			URL string `json:"url"`
		} `json:"attachment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		c.log.Warn("attachment upload reply unreadable", logx.Err(err))
		return "", nil
	}
	return reply.Attachment.URL, nil
}

// Publish POSTs a message to its topic. Unlike uploads, a rejected publish
// is an error; callers retry it.
func (c *Client) Publish(ctx context.Context, creds Credentials, msg Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("ntfy: publish: empty topic")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+msg.Topic, strings.NewReader(msg.Body))
	if err != nil {
		return err
	}
	if msg.Title != "" {
		req.Header.Set("Title", encodeHeader(msg.Title))
	}
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	priority := msg.Priority
	if priority == "" {
		priority = DefaultPriority
	}
	req.Header.Set("Priority", priority)
	if msg.Click != "" {
		req.Header.Set("Click", msg.Click)
	}
	if msg.Attach != "" {
		req.Header.Set("Attach", msg.Attach)
	}
	if creds.Username != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: publish to %s: %w", msg.Topic, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy: publish to %s: unexpected status %d", msg.Topic, resp.StatusCode)
	}
	return nil
}

// encodeHeader wraps a header value in an RFC 2047 encoded-word when it
// carries non-ASCII bytes (emoji in titles, mostly); that is the encoding
// ntfy documents for UTF-8 header values. Plain ASCII passes through
// untouched.
func encodeHeader(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return mime.BEncoding.Encode("utf-8", s)
		}
	}
	return s
}
