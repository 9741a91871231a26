// Package restmail reads disposable mailboxes over the restmail HTTP API and
// extracts verification links from the messages it finds there.
package restmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/persona-e2e/internal/errs"
	"github.com/kuitang/persona-e2e/internal/obs"
	"github.com/kuitang/persona-e2e/internal/ratelimit"
	"github.com/kuitang/persona-e2e/internal/testuser"
)

// DefaultBaseURL is the public restmail service.
const DefaultBaseURL = "https://restmail.net"

// PollInterval is the spacing between mailbox reads when no limiter is set.
const PollInterval = 500 * time.Millisecond

var errThrottled = errors.New("mailbox throttled")

// Address is a sender or recipient.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Message is one delivered email.
type Message struct {
	Text       string         `json:"text"`
	HTML       string         `json:"html,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	From       []Address      `json:"from,omitempty"`
	To         []Address      `json:"to,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt,omitzero"`
	Headers    map[string]any `json:"headers,omitempty"`
}

var stripTags = bluemonday.StrictPolicy()

// Body returns the plain-text part, or the HTML part with markup stripped
// when no text part was delivered.
func (m Message) Body() string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	if m.HTML == "" {
		return ""
	}
	return html.UnescapeString(stripTags.Sanitize(m.HTML))
}

// Client talks to one restmail deployment.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// Limiter paces mailbox reads per address. Nil falls back to PollInterval sleeps.
	Limiter *ratelimit.RateLimiter
}

// NewClient returns a client for baseURL (DefaultBaseURL when empty) whose
// requests are logged through obs.
func NewClient(baseURL string, limiter *ratelimit.RateLimiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: &obs.Transport{Pkg: "restmail"},
		},
		Limiter: limiter,
	}
}

func (c *Client) mailboxURL(addr string) (string, error) {
	local := testuser.LocalPart(addr)
	if local == "" {
		return "", errs.Newf(errs.InvalidArgument, "restmail: %q has no local part", addr)
	}
	return c.BaseURL + "/mail/" + url.PathEscape(local), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Messages returns every message currently in addr's mailbox, oldest first.
func (c *Client) Messages(ctx context.Context, addr string) ([]Message, error) {
	target, err := c.mailboxURL(addr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "restmail: build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "restmail: fetch "+addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.Wrap(errs.Unavailable, "restmail: fetch "+addr, errThrottled)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.Newf(errs.Unavailable, "restmail: fetch %s: status %d: %s", addr, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var msgs []Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "restmail: decode mailbox "+addr, err)
	}
	return msgs, nil
}

// Delete empties addr's mailbox.
func (c *Client) Delete(ctx context.Context, addr string) error {
	target, err := c.mailboxURL(addr)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return errs.Wrap(errs.Internal, "restmail: build request", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "restmail: delete "+addr, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return errs.Newf(errs.Unavailable, "restmail: delete %s: status %d", addr, resp.StatusCode)
	}
	return nil
}

// Wait polls addr until it holds at least count messages (1 when count <= 0)
// and returns all of them in arrival order. Running out of time yields an
// errs.Timeout naming the expected and actual counts.
func (c *Client) Wait(ctx context.Context, addr string, count int, timeout time.Duration) ([]Message, error) {
	if count <= 0 {
		count = 1
	}
	log := obs.From(ctx).With("pkg", "restmail", "mailbox", addr)
	start := time.Now()
	deadline := start.Add(timeout)

	got := 0
	for attempt := 0; ; attempt++ {
		if err := c.pace(ctx, addr, attempt, deadline); err != nil {
			return nil, err
		}

		msgs, err := c.Messages(ctx, addr)
		switch {
		case errors.Is(err, errThrottled):
			log.Debug("restmail_throttled", "attempt", attempt)
		case err != nil:
			return nil, err
		default:
			got = len(msgs)
			log.Debug("restmail_poll", "attempt", attempt, "have", got, "want", count)
			if got >= count {
				return msgs, nil
			}
		}

		if !time.Now().Before(deadline) {
			elapsed := time.Since(start).Round(time.Millisecond)
			log.Warn("restmail_timeout", "have", got, "want", count, "elapsed", elapsed.String())
			return nil, errs.New(errs.Timeout, fmt.Sprintf(
				"restmail: expected %d message(s) for %s, found %d after %s", count, addr, got, elapsed))
		}
	}
}

// pace blocks before every mailbox read after the first. When the limiter
// cannot grant a token before the deadline, it sleeps out the remaining time
// so the caller gets exactly one more read.
func (c *Client) pace(ctx context.Context, addr string, attempt int, deadline time.Time) error {
	if c.Limiter != nil {
		wctx, cancel := context.WithDeadline(ctx, deadline)
		defer cancel()
		if err := c.Limiter.Wait(wctx, addr); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errs.Wrap(errs.Unavailable, "restmail: wait cancelled", ctx.Err())
		}
		sleepCtx(ctx, time.Until(deadline))
		return nil
	}
	if attempt == 0 {
		return nil
	}
	d := PollInterval
	if remaining := time.Until(deadline); remaining < d {
		d = remaining
	}
	sleepCtx(ctx, d)
	if ctx.Err() != nil {
		return errs.Wrap(errs.Unavailable, "restmail: wait cancelled", ctx.Err())
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// VerificationLink waits for the message at index (zero-based) in addr's
// mailbox and extracts the link for purpose from it. It returns the link and
// its token.
func (c *Client) VerificationLink(ctx context.Context, addr string, index int, purpose Purpose, timeout time.Duration) (string, string, error) {
	if index < 0 {
		index = 0
	}
	msgs, err := c.Wait(ctx, addr, index+1, timeout)
	if err != nil {
		return "", "", err
	}
	msg := msgs[index]
	link, err := ExtractLink(msg.Body(), purpose)
	if err != nil && msg.HTML != "" {
		link, err = ExtractLink(msg.HTML, purpose)
	}
	if err != nil {
		return "", "", err
	}
	token, err := Token(link)
	if err != nil {
		return "", "", err
	}
	return link, token, nil
}
