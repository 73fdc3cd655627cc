// Package interfaces defines the core types and contracts shared by the
// robot-config-service components. It provides the boundary between the
// reconciliation engine and its collaborators without implementation details.
package interfaces

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// EventID identifies the operational event the robot should be configured
// for. It is an opaque token issued by the hub cluster; the service only ever
// compares two of them for equality.
type EventID string

// String returns the event identifier as a string.
func (id EventID) String() string {
	return string(id)
}

// Equal compares two event identifiers.
func (id EventID) Equal(other EventID) bool {
	return id == other
}

// ClusterURL is the base URL of the currently active hub cluster. It is
// derived once per run by the endpoint resolver and never cached across runs.
type ClusterURL string

// NewClusterURL validates and normalizes a cluster base URL. The query string
// is stripped and any trailing slash removed so paths can be appended
// directly.
func NewClusterURL(raw string) (ClusterURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty cluster URL")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid cluster URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", fmt.Errorf("cluster URL must be absolute: %s", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported cluster URL scheme: %s", parsed.Scheme)
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	return ClusterURL(strings.TrimRight(parsed.String(), "/")), nil
}

// String returns the cluster URL as a string.
func (u ClusterURL) String() string {
	return string(u)
}

// ControlEndpoint returns the URL of a control-plane endpoint on the cluster,
// e.g. ControlEndpoint("eventId") -> "<base>/control/eventId".
func (u ClusterURL) ControlEndpoint(name string) string {
	return string(u) + "/control/" + name
}

// Credential is the secret connection token document obtained per
// reconfiguration. It is single-use within one run and must never be cached
// or logged; String redacts the content so accidental formatting does not
// leak it.
type Credential []byte

// String returns a redacted representation. The raw bytes are only reachable
// through explicit conversion by the configuration applier.
func (c Credential) String() string {
	return fmt.Sprintf("[credential %d bytes]", len(c))
}

// TunnelStatus is the result of probing the tunnel agent. It is always
// recomputed, never persisted.
type TunnelStatus int

const (
	// TunnelUnknown is only observed transiently between probes.
	TunnelUnknown TunnelStatus = iota

	// TunnelHealthy means at least one probe saw a live link to a remote site.
	TunnelHealthy

	// TunnelUnhealthy means every probe in the retry budget came back negative.
	TunnelUnhealthy
)

// String returns a human-readable status name.
func (s TunnelStatus) String() string {
	switch s {
	case TunnelHealthy:
		return "healthy"
	case TunnelUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Decision is the output of the reconciliation engine for a single run. It
// exists only within one execution and is never persisted.
type Decision int

const (
	// DecisionSkip means the tunnel is already configured for the current
	// event; the run ends without side effects.
	DecisionSkip Decision = iota

	// DecisionReconfigure means a credential must be fetched and the
	// configuration playbook applied.
	DecisionReconfigure
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionReconfigure:
		return "reconfigure"
	default:
		return "skip"
	}
}
