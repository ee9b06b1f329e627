// Package imageio talks to the image I/O daemon running on the transfer host.
// The daemon serves data to clients only while it holds a ticket for the
// session.
package imageio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/dcengine/internal/platform/logger"
)

// Ticket is the daemon's view of a transfer session.
type Ticket struct {
	UUID     string   `json:"uuid"`
	Size     int64    `json:"size"`
	URL      string   `json:"url"`
	Timeout  int64    `json:"timeout"`
	Ops      []string `json:"ops"`
	Filename string   `json:"filename,omitempty"`
}

type Agent interface {
	AddTicket(ctx context.Context, t Ticket) error
	ExtendTicket(ctx context.Context, id string, timeout time.Duration) error
	RemoveTicket(ctx context.Context, id string) error
}

type Config struct {
	BaseURL    string        `env:"IMAGEIO_URL"`
	Timeout    time.Duration `env:"IMAGEIO_TIMEOUT" envDefault:"10s"`
	MaxRetries int           `env:"IMAGEIO_MAX_RETRIES" envDefault:"3"`
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

func New(log *logger.Logger, cfg Config) (Agent, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("imageio: base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("imageio: invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("client", "ImageIOAgent"),
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *client) AddTicket(ctx context.Context, t Ticket) error {
	if strings.TrimSpace(t.UUID) == "" {
		return fmt.Errorf("imageio: ticket uuid required")
	}
	return c.do(ctx, http.MethodPut, c.ticketURL(t.UUID), t)
}

func (c *client) ExtendTicket(ctx context.Context, id string, timeout time.Duration) error {
	body := map[string]int64{"timeout": int64(timeout / time.Second)}
	return c.do(ctx, http.MethodPatch, c.ticketURL(id), body)
}

// RemoveTicket treats an unknown ticket as already removed.
func (c *client) RemoveTicket(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, c.ticketURL(id), nil)
	if he, ok := err.(*HTTPError); ok && he.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *client) ticketURL(id string) string {
	return c.baseURL + "/tickets/" + url.PathEscape(strings.TrimSpace(id))
}

func (c *client) do(ctx context.Context, method, endpoint string, body any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("imageio: encode request: %w", err)
		}
		payload = raw
	}
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.doOnce(ctx, method, endpoint, payload)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) || attempt == c.maxRetries {
			return err
		}
		sleepFor := jitter(retryAfter(resp, backoff, 5*time.Second))
		c.log.Warn("imageio request retrying", "method", method, "url", endpoint, "attempt", attempt+1, "sleep_ms", sleepFor.Milliseconds(), "error", err)
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil
}

func (c *client) doOnce(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("imageio http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// Noop accepts every call. It backs deployments without a transfer host.
type Noop struct{}

func (Noop) AddTicket(context.Context, Ticket) error                    { return nil }
func (Noop) ExtendTicket(context.Context, string, time.Duration) error { return nil }
func (Noop) RemoveTicket(context.Context, string) error                { return nil }
