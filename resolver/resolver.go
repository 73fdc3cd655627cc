package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hubrobotics/robot-config-service/interfaces"
	"github.com/hubrobotics/robot-config-service/retry"
)

// maxRedirectHops bounds a single resolution attempt; pointer services
// normally answer with a one or two hop chain.
const maxRedirectHops = 10

// Client resolves the active hub cluster by following the authenticated
// redirect pointer. Redirect hops may land on a different host, so the basic
// auth credentials are re-applied on every request of the chain instead of
// relying on net/http's same-host redirect handling.
type Client struct {
	// PointerURL is the fixed, externally supplied redirect URL.
	PointerURL string

	// PointerIsCluster skips resolution entirely and treats PointerURL as
	// the cluster base URL.
	PointerIsCluster bool

	// Username and Password are sent as HTTP Basic auth on every hop.
	Username string
	Password string

	// HTTPClient must not follow redirects on its own. When nil a suitable
	// client with a 10s timeout is used.
	HTTPClient *http.Client

	// Retry is the budget for the whole resolution (all hops count as one
	// attempt).
	Retry retry.Policy

	Log *slog.Logger
}

// errAuthRejected marks 401/403 answers; retrying cannot fix bad credentials.
var errAuthRejected = errors.New("authentication rejected by pointer service")

// Resolve follows the pointer to the active cluster base URL. It returns a
// *interfaces.ResolutionError when the retry budget is exhausted or the
// pointer service rejects the credentials.
func (c *Client) Resolve(ctx context.Context) (interfaces.ClusterURL, error) {
	if c.PointerIsCluster {
		cluster, err := interfaces.NewClusterURL(c.PointerURL)
		if err != nil {
			return "", &interfaces.ResolutionError{Err: err}
		}
		c.Log.Info("Using pointer URL as cluster URL (no redirect)", "cluster", cluster)
		return cluster, nil
	}

	var cluster interfaces.ClusterURL
	err := c.Retry.Do(ctx, func() error {
		var attemptErr error
		cluster, attemptErr = c.followPointer(ctx)
		return attemptErr
	})
	if err != nil {
		return "", &interfaces.ResolutionError{Err: err}
	}

	c.Log.Info("Resolved cluster URL", "cluster", cluster)
	return cluster, nil
}

// followPointer performs one resolution attempt: a manual redirect chain with
// auth on every hop, loop detection, and a hop bound.
func (c *Client) followPointer(ctx context.Context) (interfaces.ClusterURL, error) {
	current, err := url.Parse(c.PointerURL)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("invalid pointer URL: %w", err))
	}

	seen := make(map[string]bool)
	for hop := 0; hop < maxRedirectHops; hop++ {
		if seen[current.String()] {
			return "", retry.Permanent(fmt.Errorf("redirect loop detected at %s", current))
		}
		seen[current.String()] = true

		c.Log.Debug("Following pointer", "url", current.String(), "hop", hop)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return "", retry.Permanent(err)
		}
		if c.Username != "" || c.Password != "" {
			req.SetBasicAuth(c.Username, c.Password)
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return "", fmt.Errorf("pointer request failed: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", retry.Permanent(fmt.Errorf("%w: HTTP %d", errAuthRejected, resp.StatusCode))

		case resp.StatusCode >= 300 && resp.StatusCode < 400:
			loc := resp.Header.Get("Location")
			if loc == "" {
				return "", fmt.Errorf("redirect status %d without Location header", resp.StatusCode)
			}
			next, err := url.Parse(loc)
			if err != nil {
				return "", fmt.Errorf("invalid redirect location %q: %w", loc, err)
			}
			current = current.ResolveReference(next)

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return interfaces.NewClusterURL(current.String())

		default:
			return "", fmt.Errorf("pointer service returned HTTP %d", resp.StatusCode)
		}
	}

	return "", retry.Permanent(errors.New("too many redirects"))
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
