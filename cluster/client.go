package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hubrobotics/robot-config-service/interfaces"
	"github.com/hubrobotics/robot-config-service/retry"
)

// Client talks to the control plane of a resolved hub cluster. All calls are
// authenticated with HTTP Basic auth and carry the robot name so the hub can
// attribute requests.
type Client struct {
	// Cluster is the resolved base URL for this run.
	Cluster interfaces.ClusterURL

	// RobotName identifies this robot to the hub; usually the hostname.
	RobotName string

	// Username and Password are the hub controller credentials.
	Username string
	Password string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// TokenRetry bounds the credential issuance polling. The hub may answer
	// non-200 while it prepares a token for a new robot, so this budget is
	// deliberately generous.
	TokenRetry retry.Policy

	Log *slog.Logger
}

// eventIDResponse covers both field spellings the hub has used.
type eventIDResponse struct {
	EventID      string `json:"event_id"`
	EventIDCamel string `json:"eventId"`
}

// tokenResponse covers both field spellings the hub has used.
type tokenResponse struct {
	Token        string `json:"token"`
	SkupperToken string `json:"skupper_token"`
}

// EventID queries the current event identifier from the cluster. The
// response may be JSON or plain text. Any failure is a
// *interfaces.RemoteQueryError and fatal for the run.
func (c *Client) EventID(ctx context.Context) (interfaces.EventID, error) {
	endpoint := c.Cluster.ControlEndpoint("eventId")
	c.Log.Info("Querying event ID", "endpoint", endpoint, "robot", c.RobotName)

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return "", &interfaces.RemoteQueryError{Op: "eventId", Err: err}
	}
	if status != http.StatusOK {
		return "", &interfaces.RemoteQueryError{Op: "eventId", Err: fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))}
	}

	eventID := parseEventID(body)
	if eventID == "" {
		return "", &interfaces.RemoteQueryError{Op: "eventId", Err: fmt.Errorf("empty event ID in response")}
	}

	c.Log.Info("Received event ID", "eventID", eventID)
	return eventID, nil
}

// FetchCredential obtains the tunnel credential for the given event. The hub
// may take a while to issue a token for a robot it has only just learned
// about, so non-200 answers are polled within TokenRetry before giving up
// with a *interfaces.RemoteQueryError.
func (c *Client) FetchCredential(ctx context.Context, event interfaces.EventID) (interfaces.Credential, error) {
	endpoint := c.Cluster.ControlEndpoint("getToken")
	c.Log.Info("Querying tunnel credential", "endpoint", endpoint, "robot", c.RobotName, "eventID", event)

	var credential interfaces.Credential
	err := c.TokenRetry.Do(ctx, func() error {
		body, status, err := c.get(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("credential request failed: %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("credential endpoint returned HTTP %d", status)
		}

		credential = parseCredential(body)
		if len(credential) == 0 {
			return fmt.Errorf("empty credential in response")
		}
		return nil
	})
	if err != nil {
		return nil, &interfaces.RemoteQueryError{Op: "getToken", Err: err}
	}

	c.Log.Info("Successfully retrieved tunnel credential")
	return credential, nil
}

// ReportInitStatus publishes a progress string to the hub. Best-effort: any
// failure is logged and swallowed so status reporting can never break a run.
func (c *Client) ReportInitStatus(ctx context.Context, status string) {
	form := url.Values{
		"robot_name": {c.RobotName},
		"status":     {status},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.Cluster.ControlEndpoint("initStatus"), strings.NewReader(form.Encode()))
	if err != nil {
		c.Log.Warn("Could not build initStatus request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setAuth(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.Log.Warn("Could not report initStatus", "status", status, "err", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Log.Warn("initStatus rejected", "status", status, "httpStatus", resp.StatusCode)
		return
	}
	c.Log.Debug("initStatus reported", "status", status)
}

// get performs an authenticated GET with the robot_name query parameter.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}

	q := req.URL.Query()
	q.Set("robot_name", c.RobotName)
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" || c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// parseEventID accepts either a JSON document with an event_id/eventId field
// or a plain text body.
func parseEventID(body []byte) interfaces.EventID {
	var parsed eventIDResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.EventID != "" {
			return interfaces.EventID(parsed.EventID)
		}
		if parsed.EventIDCamel != "" {
			return interfaces.EventID(parsed.EventIDCamel)
		}
	}
	return interfaces.EventID(strings.TrimSpace(string(body)))
}

// parseCredential accepts either a JSON document with a token/skupper_token
// field or the raw token document itself.
func parseCredential(body []byte) interfaces.Credential {
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Token != "" {
			return interfaces.Credential(parsed.Token)
		}
		if parsed.SkupperToken != "" {
			return interfaces.Credential(parsed.SkupperToken)
		}
	}
	return interfaces.Credential(strings.TrimSpace(string(body)))
}
