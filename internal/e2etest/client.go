package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	neturl "net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Client is a session-aware HTTP client for the server under test.
type Client struct {
	client *http.Client
	url    string
}

// unsafeCookieJar accepts Secure cookies over plain HTTP because the test server does not use TLS.
type unsafeCookieJar struct {
	*cookiejar.Jar
}

func (j unsafeCookieJar) SetCookies(u *neturl.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		c.Secure = false
	}
	j.Jar.SetCookies(u, cookies)
}

// NewClient creates a Client with its own cookie jar.
func NewClient(url string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		client: &http.Client{ //nolint:exhaustruct // defaults are fine.
			Jar: unsafeCookieJar{Jar: jar},
			// Redirects to the activity provider are asserted, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		url: url,
	}, nil
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		if resp, doErr := c.client.Do(req); doErr == nil {
			if err = resp.Body.Close(); err != nil {
				return fmt.Errorf("close response body: %w", err)
			}
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Get fetches a URL and returns the response.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, urlPath, nil)
}

// GetDoc fetches a URL and returns a goquery document.
func (c *Client) GetDoc(ctx context.Context, urlPath string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, urlPath)
	if err != nil {
		return nil, fmt.Errorf("client get: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if http.StatusOK != resp.StatusCode {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create document from reader: %w", err)
	}
	return doc, nil
}

// Do sends a request with body encoded as JSON. A nil body sends no body.
func (c *Client) Do(ctx context.Context, method, urlPath string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

// JSON sends body as JSON and decodes the response into dst when dst is not nil. It returns the status code so that
// tests can assert error responses too.
func (c *Client) JSON(ctx context.Context, method, urlPath string, body, dst any) (int, error) {
	resp, err := c.Do(ctx, method, urlPath, body)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if dst != nil && resp.StatusCode != http.StatusNoContent {
		if err = json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", method, urlPath, err)
		}
	}
	return resp.StatusCode, nil
}

// StartSession creates an anonymous runner and logs the client in as that runner.
func (c *Client) StartSession(ctx context.Context) (int, error) {
	var out struct {
		RunnerID int `json:"runnerId"`
	}
	status, err := c.JSON(ctx, http.MethodPost, "/api/session", nil, &out)
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("start session: unexpected status code: %d", status)
	}
	return out.RunnerID, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	status, err := c.JSON(ctx, http.MethodPost, "/api/logout", nil, nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("logout: unexpected status code: %d", status)
	}
	return nil
}
