// Package telegram is a minimal Bot API client: long-poll updates, text and
// inline-keyboard messages, document upload and file download. Outbound calls
// retry transient failures with backoff; polling surfaces classified errors
// to the caller so the processing loop can decide whether to pause.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/medconn/medconnect/internal/backoff"
)

const DefaultBaseURL = "https://api.telegram.org"

type ClientOptions struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
	Retry      backoff.Policy
	Logger     *slog.Logger
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	retry   backoff.Policy
	logger  *slog.Logger
}

func NewClient(opts ClientOptions) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := opts.Retry
	if retry.Logger == nil {
		retry.Logger = logger
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		retry:   retry,
		logger:  logger,
	}, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out getMeResponse
	if err := c.getJSON(ctx, c.methodURL("getMe"), &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, backoff.Permanent(fmt.Errorf("telegram getMe: ok=false"))
	}
	return &out.Result, nil
}

// GetUpdates long-polls for a batch of updates and returns the next offset.
// Errors come back classified but unretried: the poll loop owns the pause and
// reachability-probe behavior for sustained failures.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	url := c.methodURL("getUpdates") + fmt.Sprintf("?timeout=%d", secs)
	if offset > 0 {
		url += fmt.Sprintf("&offset=%d", offset)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var out getUpdatesResponse
	if err := c.getJSON(reqCtx, url, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, backoff.Permanent(fmt.Errorf("telegram getUpdates: ok=false"))
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return backoff.ClassifyNetwork(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err := classifyStatus(resp, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return backoff.ClassifyNetwork(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err := classifyStatus(resp, raw); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(err)
		}
	}
	return nil
}

// classifyStatus maps HTTP statuses to the retry taxonomy: 429 is
// rate-limited with the server wait, other non-2xx are permanent.
func classifyStatus(resp *http.Response, raw []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	if resp.StatusCode == http.StatusTooManyRequests {
		return backoff.RateLimited(err, retryAfter(resp))
	}
	return backoff.Permanent(err)
}

func retryAfter(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
