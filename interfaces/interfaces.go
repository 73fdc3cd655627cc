package interfaces

import "context"

// ClusterResolver discovers the currently active hub cluster. Implementations
// follow the authenticated redirect pointer or an out-of-band source such as
// a GitHub repository; the engine only sees the resolved base URL.
type ClusterResolver interface {
	// Resolve returns the active cluster base URL for this run. It returns a
	// *ResolutionError once its internal retry budget is exhausted or the
	// pointer service rejects the credentials.
	Resolve(ctx context.Context) (ClusterURL, error)
}

// EventSource reports the event the cluster currently expects robots to be
// configured for.
type EventSource interface {
	// EventID fetches the remote event identifier. Failures are fatal for
	// the run and surface as *RemoteQueryError.
	EventID(ctx context.Context) (EventID, error)
}

// CredentialSource issues the connection credential needed to establish the
// tunnel for an event.
type CredentialSource interface {
	// FetchCredential obtains a credential scoped to the given event. The
	// returned document is used once and discarded.
	FetchCredential(ctx context.Context, event EventID) (Credential, error)
}

// StateStore persists the last event identifier the robot successfully
// configured for. It is the only durable state the service owns.
type StateStore interface {
	// Load returns the persisted event identifier. A missing (or unreadable,
	// see ErrNoStoredEvent) state file is the designated "never configured"
	// signal, not a failure.
	Load() (EventID, error)

	// Save overwrites the persisted event identifier. The write must be
	// atomic so a crash cannot leave a corrupt file behind.
	Save(event EventID) error
}

// TunnelProber determines whether the tunnel is currently established.
type TunnelProber interface {
	// Connected probes the tunnel agent within the configured retry budget.
	// It never fails: local tooling problems count as negative probes.
	Connected(ctx context.Context) TunnelStatus
}

// ConfigApplier brings the tunnel up for a new credential. The production
// implementation shells out to an automation playbook; its exit status is
// the sole success signal.
type ConfigApplier interface {
	// Apply runs the configuration automation with the given credential.
	// Returns *ApplierError when the automation fails.
	Apply(ctx context.Context, credential Credential) error
}

// StatusReporter publishes coarse progress strings to the hub so operators
// can follow a robot's boot sequence. Reporting is best-effort; failures are
// logged and otherwise ignored.
type StatusReporter interface {
	ReportInitStatus(ctx context.Context, status string)
}
