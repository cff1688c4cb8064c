package curb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"curbenergy/auth"
)

const defaultUserAgent = "curbenergy-go/1.0"

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (default DefaultBaseURL).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for API requests.
// Defaults to a client with a 30 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithUserAgent overrides the User-Agent header sent with every request.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// Client is a client for the Curb REST API. All methods are safe for
// concurrent use; data fetches proceed concurrently once a valid token is
// held.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	tokens     *auth.TokenManager

	mu    sync.Mutex
	entry *entryPoint
}

// New creates a Client that authenticates through the given token manager.
// No I/O is performed until the first call.
func New(tokens *auth.TokenManager, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates eagerly and performs entry-point discovery. Calling it
// is optional: every data fetch authenticates and discovers lazily on first
// use.
func (c *Client) Login(ctx context.Context) error {
	if _, err := c.tokens.Token(ctx); err != nil {
		return err
	}
	_, err := c.links(ctx)
	return err
}

// Logout releases the held token state and the client's idle connections.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()

	err := c.tokens.Logout(ctx)
	c.Close()
	return err
}

// Close releases the transport's idle connections. The client remains usable
// afterwards; new connections are dialed on demand.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Profiles returns the profiles associated with the authenticated user.
func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	entry, err := c.links(ctx)
	if err != nil {
		return nil, err
	}

	var envelope profilesEnvelope
	if err := c.get(ctx, entry.Links.Profiles.Href, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Embedded.Profiles, nil
}

// Devices returns the devices associated with the authenticated user.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	entry, err := c.links(ctx)
	if err != nil {
		return nil, err
	}

	var envelope devicesEnvelope
	if err := c.get(ctx, entry.Links.Devices.Href, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Devices, nil
}

// HistoricalQuery bounds and shapes a HistoricalData request.
type HistoricalQuery struct {
	// Granularity is PerMinute, PerHour or PerDay. Defaults to PerHour.
	Granularity string
	// Unit is Watt or DollarPerHour. Defaults to Watt.
	Unit string
	// Since is the start of the window in epoch seconds; zero means the
	// beginning of recorded data.
	Since int64
	// Until is the optional end of the window in epoch seconds.
	Until *int64
}

// HistoricalData returns recorded measurements for the given profile.
func (c *Client) HistoricalData(ctx context.Context, profileID int64, query HistoricalQuery) (*Measurement, error) {
	if query.Granularity == "" {
		query.Granularity = PerHour
	}
	if query.Unit == "" {
		query.Unit = Watt
	}

	params := url.Values{}
	params.Set("granularity", query.Granularity)
	params.Set("unit", query.Unit)
	params.Set("since", strconv.FormatInt(query.Since, 10))
	if query.Until != nil {
		params.Set("until", strconv.FormatInt(*query.Until, 10))
	}

	path := fmt.Sprintf("/api/profiles/%d/historical-data", profileID)

	var envelope historicalEnvelope
	if err := c.get(ctx, path, params, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Results) == 0 {
		return nil, &auth.DecodeError{Err: fmt.Errorf("historical data response carries no results")}
	}
	return &envelope.Results[0], nil
}

// links returns the cached entry-point document, fetching it on first use.
func (c *Client) links(ctx context.Context) (*entryPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry != nil {
		return c.entry, nil
	}

	var entry entryPoint
	if err := c.get(ctx, entryPointPath, nil, &entry); err != nil {
		return nil, err
	}
	if entry.Links.Profiles.Href == "" || entry.Links.Devices.Href == "" {
		return nil, &auth.DecodeError{Err: fmt.Errorf("entry point carries no profile or device links")}
	}
	c.entry = &entry
	return c.entry, nil
}

// get performs an authorized GET and decodes the JSON response into out.
//
// An authorization-failure response invalidates the held token and retries
// the call exactly once; a second failure surfaces as
// *auth.AuthenticationError without another attempt.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.do(ctx, path, params)
	if err != nil {
		return err
	}

	if authFailure(resp.StatusCode) {
		drain(resp)
		c.tokens.Invalidate()

		resp, err = c.do(ctx, path, params)
		if err != nil {
			return err
		}
		if authFailure(resp.StatusCode) {
			drain(resp)
			return &auth.AuthenticationError{
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("request rejected after token renewal"),
			}
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: unexpected status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &auth.DecodeError{Err: err}
	}
	return nil
}

// do issues a single authorized GET, ensuring a valid access token first.
func (c *Client) do(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &auth.TransportError{Err: err}
	}
	return resp, nil
}

func authFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
