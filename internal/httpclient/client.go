// Package httpclient is the authenticated request pipeline. It is the single
// place that reacts to an authorization failure: no other component may clear
// the session off a response.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-client/internal/session"
	apperrors "github.com/jwalitptl/booking-client/pkg/errors"
	"github.com/jwalitptl/booking-client/pkg/kvstore"
	"github.com/jwalitptl/booking-client/pkg/metrics"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerRequestID     = "X-Request-ID"
	contentTypeJSON     = "application/json"
)

// Navigator receives redirect side effects. The UI shell (or the CLI's route
// tracker) implements it.
type Navigator interface {
	Redirect(path string)
}

// Locator reports the route the user is currently on, so the session-expiry
// redirect can carry a return target.
type Locator interface {
	CurrentPath() string
}

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	AuthPrefix        string
	LoginPath         string
}

type Deps struct {
	KV       kvstore.Store
	Session  *session.Store
	Nav      Navigator
	Loc      Locator
	Metrics  *metrics.Metrics
	Logger   *zerolog.Logger
}

// Client wraps outbound requests: bearer injection, request IDs, rate
// limiting and centralized 401/403 recovery.
type Client struct {
	http       *http.Client
	baseURL    string
	limiter    *rate.Limiter
	kv         kvstore.Store
	session    *session.Store
	nav        Navigator
	loc        Locator
	metrics    *metrics.Metrics
	logger     *zerolog.Logger
	authPrefix string
	loginPath  string
}

func New(cfg Config, deps Deps) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 20
	}

	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		kv:         deps.KV,
		session:    deps.Session,
		nav:        deps.Nav,
		loc:        deps.Loc,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		authPrefix: cfg.AuthPrefix,
		loginPath:  cfg.LoginPath,
	}
}

// Send performs one API call. A decoded body lands in result when result is
// non-nil; pass a *json.RawMessage to defer tolerant decoding to the caller.
func (c *Client) Send(ctx context.Context, method, path string, params url.Values, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewNetwork(err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if token := c.bearer(ctx); token != "" {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}
	req.Header.Set(headerRequestID, uuid.NewString())
	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.RequestsTotal.WithLabelValues(method, "network_error").Inc()
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return apperrors.NewNetwork(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RequestsTotal.WithLabelValues(method, "network_error").Inc()
		return apperrors.NewNetwork(err)
	}

	c.metrics.RequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.expireSession(ctx, path)
		// The rejection still propagates: callers handle it like any other
		// failure and must not assume the redirect aborted them.
		return apperrors.FromStatus(resp.StatusCode, serverMessage(respBody))
	}

	if resp.StatusCode >= 400 {
		return apperrors.FromStatus(resp.StatusCode, serverMessage(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return apperrors.NewShape(path, err)
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, params url.Values, result interface{}) error {
	return c.Send(ctx, http.MethodGet, path, params, nil, result)
}

func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	return c.Send(ctx, http.MethodPost, path, nil, body, result)
}

func (c *Client) Patch(ctx context.Context, path string, body, result interface{}) error {
	return c.Send(ctx, http.MethodPatch, path, nil, body, result)
}

// bearer reads the token from the key-value store, treating sentinel strings
// as absent.
func (c *Client) bearer(ctx context.Context) string {
	token, err := c.kv.Get(ctx, session.KeyToken)
	if err != nil {
		return ""
	}
	return session.Normalize(token)
}

// expireSession clears both stores and redirects to login with the current
// path as return target, unless the user is already on an auth route.
func (c *Client) expireSession(ctx context.Context, path string) {
	c.metrics.SessionExpiries.Inc()
	c.logger.Info().Str("path", path).Msg("authorization rejected, clearing session")
	c.session.Clear(ctx)

	current := c.loc.CurrentPath()
	if strings.HasPrefix(current, c.authPrefix) {
		return
	}
	c.nav.Redirect(c.loginPath + "?redirect=" + url.QueryEscape(current))
}

func serverMessage(body []byte) string {
	var probe struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Message
}
