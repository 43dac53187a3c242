// Package contenthttp talks to the headless content store over its REST API.
package contenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/mariner-lms/internal/content"
)

const maxErrorBody = 4 << 10

type Config struct {
	BaseURL string
	// APIKey is sent as "Authorization: <AuthCollection> API-Key <APIKey>".
	APIKey         string
	AuthCollection string
	// When TokenURL is set, OAuth2 client credentials are used instead.
	TokenURL     string
	ClientID     string
	ClientSecret string

	Timeout    time.Duration
	MaxRetries int           // total tries per idempotent call; <= 1 disables retry
	RetryWait  time.Duration // first backoff interval
	// Base is the transport under auth; http.DefaultTransport when nil.
	Base http.RoundTripper
}

type Client struct {
	base      *url.URL
	http      *http.Client
	maxTries  uint
	retryWait time.Duration
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("contenthttp: base url required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("contenthttp: parse base url: %w", err)
	}
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var h *http.Client
	switch {
	case cfg.TokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base})
		h = cc.Client(ctx)
	case cfg.APIKey != "":
		collection := cfg.AuthCollection
		if collection == "" {
			collection = "users"
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIKey,
			TokenType:   collection + " API-Key",
		})
		h = &http.Client{Transport: &oauth2.Transport{Source: ts, Base: base}}
	default:
		h = &http.Client{Transport: base}
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}

	tries := cfg.MaxRetries
	if tries < 1 {
		tries = 1
	}
	wait := cfg.RetryWait
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}
	return &Client{base: u, http: h, maxTries: uint(tries), retryWait: wait}, nil
}

type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	retry  bool
}

// do performs the call, decoding a 2xx body into out. Retryable calls are
// tried again on transport errors and 408, 429 and 5xx answers.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	// cl.path is already escaped; Path carries the decoded form.
	raw, err := url.PathUnescape(cl.path)
	if err != nil {
		return fmt.Errorf("%s: bad path %q: %w", cl.op, cl.path, err)
	}
	u := *c.base
	u.Path = c.base.Path + raw
	u.RawPath = c.base.EscapedPath() + cl.path
	u.RawQuery = cl.query.Encode()

	var payload []byte
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", cl.op, err)
		}
		payload = b
	}

	attempt := func() (struct{}, error) {
		err := c.once(ctx, cl, u.String(), payload, out)
		if err == nil {
			return struct{}{}, nil
		}
		if !cl.retry || !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		var re *content.RemoteError
		if errors.As(err, &re) && re.RetryAfter > 0 {
			return struct{}{}, backoff.RetryAfter(re.RetryAfter)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWait
	_, err = backoff.Retry(ctx, attempt, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	return err
}

func (c *Client) once(ctx context.Context, cl call, target string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", cl.op, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &content.RemoteError{
			Op:         cl.op,
			Status:     res.StatusCode,
			Body:       strings.TrimSpace(string(b)),
			RetryAfter: retryAfterSeconds(res.Header.Get("Retry-After")),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", cl.op, err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *content.RemoteError
	if errors.As(err, &re) {
		return isRetryableStatus(re.Status)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func isRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

func retryAfterSeconds(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
