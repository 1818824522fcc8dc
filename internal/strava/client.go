// Package strava is a small client for the Strava OAuth and activity APIs.
package strava

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/errors"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the production host for both the OAuth and the REST endpoints.
	DefaultBaseURL = "https://www.strava.com"
	defaultTimeout = 30 * time.Second
	// Scope is requested on connect. Private activities need activity:read_all.
	Scope = "read,activity:read_all"
)

// ErrNotConfigured is returned when the client id or secret is missing.
var ErrNotConfigured = errors.NewSentinel("strava client not configured")

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL     string
	RedirectURL string
	// Timeout bounds every call to the provider.
	Timeout time.Duration
}

// Client talks to Strava. It is safe for concurrent use.
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Token is an OAuth token pair as issued by Strava.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	AthleteID    int64
}

// Activity is a recorded activity as returned by the activities list endpoint.
type Activity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Distance       float64   `json:"distance"`
	MovingTime     int       `json:"moving_time"`
	StartDate      time.Time `json:"start_date"`
	StartDateLocal string    `json:"start_date_local"`
	SportType      string    `json:"sport_type"`
	Type           string    `json:"type"`
}

// Day is the calendar day the activity started on, in the athlete's local time when known.
func (a Activity) Day() string {
	if len(a.StartDateLocal) >= len(time.DateOnly) {
		return a.StartDateLocal[:len(time.DateOnly)]
	}
	return a.StartDate.UTC().Format(time.DateOnly)
}

// Sport prefers the detailed sport type over the legacy activity type.
func (a Activity) Sport() string {
	if a.SportType != "" {
		return a.SportType
	}
	return a.Type
}

// Athlete is the authenticated athlete profile.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:       baseURL + "/oauth/authorize",
				DeviceAuthURL: "",
				TokenURL:      baseURL + "/oauth/token",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      []string{Scope},
		},
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout}, //nolint:exhaustruct // defaults are fine.
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// AuthCodeURL returns the provider consent page URL.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return Token{}, c.retrieveError(err, "exchange authorization code")
	}
	return fromOAuth(tok), nil
}

// Refresh exchanges a refresh token for a new token pair. The old refresh token is kept when the provider
// does not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	// An empty access token is never valid, so the source always refreshes.
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token() //nolint:exhaustruct // only the refresh token is known.
	if err != nil {
		return Token{}, c.retrieveError(err, "refresh token")
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "refreshed provider token", slog.Time("expiry", tok.Expiry))
	return fromOAuth(tok), nil
}

// Activities lists one page of activities started after after. A zero after disables the filter.
func (c *Client) Activities(ctx context.Context, accessToken string, after time.Time, page, perPage int) ([]Activity, error) {
	q := url.Values{}
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var activities []Activity
	if err := c.get(ctx, accessToken, "/api/v3/athlete/activities?"+q.Encode(), &activities); err != nil {
		return nil, errors.Wrap(err, "list activities", slog.Int("page", page))
	}
	return activities, nil
}

// Athlete returns the profile of the token owner.
func (c *Client) Athlete(ctx context.Context, accessToken string) (Athlete, error) {
	var athlete Athlete
	if err := c.get(ctx, accessToken, "/api/v3/athlete", &athlete); err != nil {
		return Athlete{}, errors.Wrap(err, "get athlete")
	}
	return athlete, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})) //nolint:exhaustruct // bearer only.

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return upstream(err, "send request")
	}
	defer resp.Body.Close()

	if err = parseErrorResponse(resp); err != nil {
		return errors.Wrap(err, "unexpected response")
	}
	if err = json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return upstream(err, "decode response")
	}
	return nil
}

func fromOAuth(tok *oauth2.Token) Token {
	t := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		AthleteID:    0,
	}
	// Strava returns expires_at as an absolute unix time next to expires_in.
	if expiresAt, ok := numberExtra(tok.Extra("expires_at")); ok && expiresAt > 0 {
		t.Expiry = time.Unix(int64(expiresAt), 0)
	}
	if athlete, ok := tok.Extra("athlete").(map[string]any); ok {
		if id, idOK := numberExtra(athlete["id"]); idOK {
			t.AthleteID = int64(id)
		}
	}
	return t
}

func numberExtra(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func (c *Client) retrieveError(err error, msg string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return errors.Wrap(&HTTPError{
			StatusCode: re.Response.StatusCode,
			Status:     http.StatusText(re.Response.StatusCode),
			Body:       truncate(string(re.Body), maxErrorBodySize),
			URL:        c.oauth.Endpoint.TokenURL,
		}, msg)
	}
	return upstream(err, msg)
}
