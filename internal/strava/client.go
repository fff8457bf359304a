// Package strava is the outbound client for the Strava OAuth and activity
// APIs. Response decoding keeps only the fields the service persists.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrActivityNotFound is returned when the provider reports 404 for an
// activity fetch, typically because it was deleted after the event fired.
var ErrActivityNotFound = fmt.Errorf("strava activity not found")

// ErrUnauthorized is returned when the provider rejects the access token.
var ErrUnauthorized = fmt.Errorf("strava token rejected")

// TokenSet is the credential bundle returned by the OAuth endpoints.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Athlete is the subset of athlete fields returned on code exchange.
type Athlete struct {
	ID int64 `json:"id"`
}

// ExchangeResult pairs the initial token set with the connecting athlete.
type ExchangeResult struct {
	TokenSet
	Athlete Athlete `json:"athlete"`
}

// Activity is the allow-listed projection of a provider activity. Anything
// not declared here is dropped before persistence.
type Activity struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	SportType          string  `json:"sport_type"`
	Distance           float64 `json:"distance"`
	MovingTime         int64   `json:"moving_time"`
	ElapsedTime        int64   `json:"elapsed_time"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
	StartDate          string  `json:"start_date"`
}

// StartUnix parses the activity start timestamp, or zero when absent.
func (a Activity) StartUnix() int64 {
	if a.StartDate == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, a.StartDate)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURLs overrides the API and OAuth endpoints, used by tests and local
// stubs.
func WithBaseURLs(api, oauth string) Option {
	return func(c *Client) {
		c.apiBase = strings.TrimRight(api, "/")
		c.oauthBase = strings.TrimRight(oauth, "/")
	}
}

// Client calls the Strava API on behalf of connected users.
type Client struct {
	http         *http.Client
	apiBase      string
	oauthBase    string
	clientID     string
	clientSecret string
}

// NewClient builds a client with the application credentials.
func NewClient(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 15 * time.Second},
		apiBase:      "https://www.strava.com/api/v3",
		oauthBase:    "https://www.strava.com/oauth",
		clientID:     clientID,
		clientSecret: clientSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExchangeCode trades an authorization code for tokens and the athlete
// identity.
func (c *Client) ExchangeCode(ctx context.Context, code string) (ExchangeResult, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	}

	var out ExchangeResult
	if err := c.postForm(ctx, c.oauthBase+"/token", form, &out); err != nil {
		return ExchangeResult{}, fmt.Errorf("exchange code: %w", err)
	}
	return out, nil
}

// Refresh trades a refresh token for a fresh token set.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	var out TokenSet
	if err := c.postForm(ctx, c.oauthBase+"/token", form, &out); err != nil {
		return TokenSet{}, fmt.Errorf("refresh token: %w", err)
	}
	return out, nil
}

// FetchActivity loads one activity with the athlete's access token.
func (c *Client) FetchActivity(ctx context.Context, accessToken string, activityID int64) (Activity, error) {
	endpoint := c.apiBase + "/activities/" + strconv.FormatInt(activityID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Activity{}, fmt.Errorf("build activity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Activity{}, fmt.Errorf("fetch activity %d: %w", activityID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Activity{}, ErrActivityNotFound
	case http.StatusUnauthorized:
		return Activity{}, ErrUnauthorized
	default:
		return Activity{}, fmt.Errorf("fetch activity %d: status %d", activityID, resp.StatusCode)
	}

	var out Activity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Activity{}, fmt.Errorf("decode activity %d: %w", activityID, err)
	}
	return out, nil
}

// Deauthorize revokes the application's access for the given token.
func (c *Client) Deauthorize(ctx context.Context, accessToken string) error {
	form := url.Values{"access_token": {accessToken}}
	if err := c.postForm(ctx, c.oauthBase+"/deauthorize", form, nil); err != nil {
		return fmt.Errorf("deauthorize: %w", err)
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
