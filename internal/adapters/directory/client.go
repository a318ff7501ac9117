// Package directory is the REST client for the Device Directory Service.
package directory

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
)

const (
	defaultTimeout  = 15 * time.Second
	maxRetries      = 3
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
	maxBodyBytes    = 8 << 20
	maxPages        = 500
	errorBodyPrefix = 256
)

// StatusError is a non-2xx answer other than 401.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

// Is lets callers match any StatusError with domain.ErrUpstream.
func (e *StatusError) Is(target error) bool {
	return target == domain.ErrUpstream
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The caller owns its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithInsecureSkipVerify disables TLS verification. Only for lab directories.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		c.http.Transport = otelhttp.NewTransport(base)
	}
}

// WithRetry tunes how GET requests are retried.
func WithRetry(attempts uint, delay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
		c.maxDelay = maxDelay
	}
}

// Client implements ports.Directory over HTTP.
type Client struct {
	base     *url.URL
	http     *http.Client
	tokens   ports.TokenSource
	log      zerolog.Logger
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
}

var _ ports.Directory = (*Client)(nil)

// NewClient creates a directory client rooted at baseURL.
func NewClient(baseURL string, tokens ports.TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid directory url %q", baseURL)
	}

	c := &Client{
		base: u,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:   tokens,
		log:      logger.WithComponent("directory"),
		attempts: maxRetries,
		delay:    initialBackoff,
		maxDelay: maxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ListDataCenters(ctx context.Context) ([]domain.DataCenter, error) {
	items, err := getAll[dataCenterDTO](ctx, c, "datacenters/")
	if err != nil {
		return nil, fmt.Errorf("list datacenters: %w", err)
	}
	out := make([]domain.DataCenter, 0, len(items))
	for _, d := range items {
		dc := d.toDomain()
		// the flat listing never carries the hierarchy
		dc.FirewallTypes = nil
		out = append(out, dc)
	}
	return out, nil
}

func (c *Client) Hierarchy(ctx context.Context) ([]domain.DataCenter, error) {
	items, err := getAll[dataCenterDTO](ctx, c, "datacenters/hierarchy/")
	if err != nil {
		return nil, fmt.Errorf("datacenter hierarchy: %w", err)
	}
	out := make([]domain.DataCenter, 0, len(items))
	for _, d := range items {
		dc := d.toDomain()
		if dc.FirewallTypes == nil {
			dc.FirewallTypes = []domain.FirewallType{}
		}
		out = append(out, dc)
	}
	return out, nil
}

func (c *Client) ListCameras(ctx context.Context) ([]domain.Device, error) {
	items, err := getAll[deviceDTO](ctx, c, "cameras/cameras/")
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	out := make([]domain.Device, 0, len(items))
	for _, d := range items {
		if d.ID == "" {
			continue
		}
		out = append(out, d.toDomain(domain.KindCamera))
	}
	return out, nil
}

func (c *Client) PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.SingleResult, error) {
	var path string
	switch ref.Kind {
	case domain.KindFirewall:
		path = "firewalls/" + url.PathEscape(ref.RemoteID) + "/ping/"
	case domain.KindCamera:
		path = "cameras/cameras/" + url.PathEscape(ref.RemoteID) + "/ping/"
	default:
		return domain.SingleResult{}, fmt.Errorf("%w: device kind %q", domain.ErrNotFound, ref.Kind)
	}

	var dto resultDTO
	if err := c.do(ctx, http.MethodPost, c.resolve(path), &dto); err != nil {
		return domain.SingleResult{}, fmt.Errorf("ping %s: %w", ref, err)
	}
	res := dto.toDomain()
	res.RemoteID = ref.RemoteID
	return domain.SingleResult{Ref: ref, Result: res}, nil
}

func (c *Client) PingAllFirewalls(ctx context.Context) (domain.BatchResult, error) {
	var dto batchDTO
	if err := c.do(ctx, http.MethodPost, c.resolve("firewalls/ping_all/"), &dto); err != nil {
		return domain.BatchResult{}, fmt.Errorf("ping all firewalls: %w", err)
	}
	return domain.BatchResult{
		Kind:    domain.KindFirewall,
		Results: results(dto.Results),
		Total:   dto.Total,
		Online:  dto.Online,
		Offline: dto.Offline,
		Errors:  dto.Errors,
	}, nil
}

func (c *Client) StartCameraPingAll(ctx context.Context) (string, error) {
	var dto taskDTO
	if err := c.do(ctx, http.MethodPost, c.resolve("cameras/cameras/ping_all/"), &dto); err != nil {
		return "", fmt.Errorf("start camera sweep: %w", err)
	}
	if dto.TaskID == "" {
		return "", fmt.Errorf("start camera sweep: %w: missing task_id", domain.ErrProtocol)
	}
	return string(dto.TaskID), nil
}

func (c *Client) CameraPingStatus(ctx context.Context, taskID string) (domain.TaskPoll, error) {
	u := c.resolve("cameras/cameras/check_ping_status/")
	q := u.Query()
	q.Set("task_id", taskID)
	u.RawQuery = q.Encode()

	var dto taskStatusDTO
	if err := c.do(ctx, http.MethodGet, u, &dto); err != nil {
		return domain.TaskPoll{}, fmt.Errorf("check sweep %s: %w", taskID, err)
	}
	msg := dto.Message
	if msg == "" {
		msg = dto.Error
	}
	return domain.TaskPoll{
		Kind:    domain.KindCamera,
		TaskID:  taskID,
		State:   domain.TaskState(dto.Status),
		Results: results(dto.Results),
		Message: msg,
	}, nil
}

func (c *Client) resolve(path string) *url.URL {
	return c.base.ResolveReference(&url.URL{Path: path})
}

// getAll follows DRF style "next" links until the last page.
func getAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	next := c.resolve(path)
	seen := make(map[string]bool)

	for pages := 0; next != nil; pages++ {
		if pages >= maxPages || seen[next.String()] {
			return nil, fmt.Errorf("%w: pagination does not terminate at %s", domain.ErrProtocol, next)
		}
		seen[next.String()] = true

		body, err := c.fetch(ctx, http.MethodGet, next)
		if err != nil {
			return nil, err
		}
		items, link, err := decodeList[T](body)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrProtocol, next, err)
		}
		all = append(all, items...)

		current := next
		next = nil
		if link != "" {
			u, err := current.Parse(link)
			if err != nil {
				return nil, fmt.Errorf("%w: next link %q: %v", domain.ErrProtocol, link, err)
			}
			next = u
		}
	}
	return all, nil
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, out any) error {
	body, err := c.fetch(ctx, method, u)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrProtocol, u.Path, err)
	}
	return nil
}

// fetch sends one request. GETs are retried on transport errors and 5xx answers.
func (c *Client) fetch(ctx context.Context, method string, u *url.URL) ([]byte, error) {
	if method != http.MethodGet {
		return c.send(ctx, method, u)
	}

	var body []byte
	err := retry.Do(func() error {
		b, err := c.send(ctx, method, u)
		if err != nil {
			return err
		}
		body = b
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(c.maxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn().Err(err).Uint("attempt", n+1).Str("url", u.Path).Msg("Retrying directory request")
		}),
	)
	return body, err
}

func (c *Client) send(ctx context.Context, method string, u *url.URL) ([]byte, error) {
	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", domain.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > errorBodyPrefix {
			snippet = snippet[:errorBodyPrefix]
		}
		return nil, &StatusError{Method: method, URL: u.Path, Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
