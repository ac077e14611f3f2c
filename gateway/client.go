package gateway

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/droniapp/go-auth-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultReissuePath is the backend endpoint exchanging an access token for
	// a fresh one.
	DefaultReissuePath = "/reissue"

	defaultHTTPTimeout    = 15 * time.Second
	defaultReissueTimeout = 10 * time.Second
)

// Client performs API calls on behalf of the UI. It attaches the session's
// bearer token and, when the backend answers 401, reissues the token once for
// every request that failed while the reissue was pending.
type Client struct {
	baseURL          string
	store            *session.Store
	httpClient       *http.Client
	reissuePath      string
	reissueTimeout   time.Duration
	redirectionURL   func() string
	onSessionExpired func()
	logger           zerolog.Logger

	mu         sync.Mutex
	refreshing bool                 // a reissue is in flight
	waiters    []chan reissueResult // callers queued behind it, in join order
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Give it a cookie jar if the
// backend keeps the refresh token in an HttpOnly cookie.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithReissuePath(path string) Option {
	return func(c *Client) {
		c.reissuePath = path
	}
}

func WithReissueTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.reissueTimeout = timeout
		}
	}
}

// WithRedirectionURL sets where the backend should send the user back to
// after a reissue, usually the current page path and query.
func WithRedirectionURL(fn func() string) Option {
	return func(c *Client) {
		c.redirectionURL = fn
	}
}

// WithSessionExpiredHandler is called once per failed reissue, after logout,
// so the hosting page can send the user to the login entry point.
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, store *session.Store, options ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		store:          store,
		reissuePath:    DefaultReissuePath,
		reissueTimeout: defaultReissueTimeout,
		redirectionURL: func() string { return "/" },
		logger:         log.Logger.With().Str("component", "gateway").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.httpClient == nil {
		// Only fails for a non-nil options argument
		jar, _ := cookiejar.New(nil)
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout, Jar: jar}
	}
	if c.onSessionExpired == nil {
		c.onSessionExpired = func() {
			c.logger.Warn().Msg("Session expired, login required")
		}
	}
	return c
}

// Store returns the session store the client reads tokens from.
func (c *Client) Store() *session.Store {
	return c.store
}
