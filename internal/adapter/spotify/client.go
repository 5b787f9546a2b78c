// Package spotify implements the music service client used to populate playlist
// metadata. It authenticates with application client credentials, reuses the
// access token until shortly before it expires and guards every API call with a
// timeout, a circuit breaker and an optional rate limiter.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/vadimbarashkov/playlist-tracker/internal/entity"
	"github.com/vadimbarashkov/playlist-tracker/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
	DefaultAPIURL   = "https://api.spotify.com/v1"

	defaultTimeout       = 10 * time.Second
	defaultTokenLifetime = time.Hour
	tokenExpirySkew      = 30 * time.Second
	tokenFlightKey       = "token"
	breakerName          = "spotify-api"
)

// Token is an application access token for public catalog reads.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time

	// skew is the margin kept before ExpiresAt. Zero means tokenExpirySkew.
	skew time.Duration
}

// Valid reports whether the token can still be used at now,
// leaving a small margin before expiry.
func (t Token) Valid(now time.Time) bool {
	skew := t.skew
	if skew == 0 {
		skew = tokenExpirySkew
	}

	return t.AccessToken != "" && now.Add(skew).Before(t.ExpiresAt)
}

// expirySkew caps the refresh margin at half the token lifetime so that
// short-lived tokens are still reused.
func expirySkew(lifetime time.Duration) time.Duration {
	return max(min(tokenExpirySkew, lifetime/2), time.Nanosecond)
}

// Config holds the client settings.
type Config struct {
	ClientID          string
	ClientSecret      string
	TokenURL          string
	APIURL            string
	Timeout           time.Duration
	RequestsPerSecond float64 // RequestsPerSecond limits API calls; zero disables the limiter.
	Burst             int
}

// Client talks to the music service Web API.
type Client struct {
	credentials *clientcredentials.Config
	httpClient  *http.Client
	apiURL      string
	timeout     time.Duration
	logger      *slog.Logger
	cb          *gobreaker.CircuitBreaker[struct{}]
	limiter     *rate.Limiter
	now         func() time.Time

	flight singleflight.Group
	mu     sync.RWMutex
	token  Token
}

// New creates a client from cfg, filling in defaults for empty fields.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		credentials: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiURL:     cfg.APIURL,
		timeout:    cfg.Timeout,
		logger:     logger,
		now:        time.Now,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	c.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing or private playlist is a valid answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, entity.ErrPlaylistNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return c
}

// Token returns a valid access token, fetching a new one only when the cached
// token is missing or about to expire. Concurrent callers share a single
// in-flight refresh and all observe its result.
func (c *Client) Token(ctx context.Context) (Token, error) {
	const op = "spotify.Client.Token"

	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}

	ch := c.flight.DoChan(tokenFlightKey, func() (any, error) {
		// Another flight may have finished between the cache check and joining.
		if tok, ok := c.cachedToken(); ok {
			return tok, nil
		}

		// The refresh outlives any single waiter but is still bounded.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		return c.refreshToken(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return Token{}, fmt.Errorf("%s: %w: %w", op, entity.ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Token{}, fmt.Errorf("%s: %w", op, res.Err)
		}
		return res.Val.(Token), nil
	}
}

func (c *Client) cachedToken() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token.Valid(c.now()) {
		return c.token, true
	}

	return Token{}, false
}

func (c *Client) refreshToken(ctx context.Context) (Token, error) {
	const op = "spotify.Client.refreshToken"

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.credentials.Token(ctx)
	if err != nil {
		metrics.MusicAPITokenRefreshes.WithLabelValues("failure").Inc()
		return Token{}, fmt.Errorf("%s: failed to fetch access token: %w", op, classifyTokenError(err))
	}

	metrics.MusicAPITokenRefreshes.WithLabelValues("success").Inc()

	now := c.now()

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultTokenLifetime)
	}

	fresh := Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiresAt,
		skew:        expirySkew(expiresAt.Sub(now)),
	}

	c.mu.Lock()
	c.token = fresh
	c.mu.Unlock()

	return fresh, nil
}

func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
		retrieveErr.Response.StatusCode == http.StatusTooManyRequests {
		return &entity.RateLimitError{
			RetryAfter: parseRetryAfter(retrieveErr.Response.Header.Get("Retry-After")),
		}
	}

	return fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}

	return time.Duration(secs) * time.Second
}
