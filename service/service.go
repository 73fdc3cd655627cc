package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hubrobotics/robot-config-service/interfaces"
)

// Clients bundles the collaborators that only exist once a cluster URL has
// been resolved for the run.
type Clients struct {
	Events      interfaces.EventSource
	Credentials interfaces.CredentialSource
	Status      interfaces.StatusReporter
	Applier     interfaces.ConfigApplier
}

// Service is the reconciliation engine. It runs the decision procedure
// exactly once per invocation: resolve the cluster, compare the remote event
// against the persisted one, consult tunnel health, and reconfigure when
// needed. The next invocation of the process is the retry; there is no retry
// loop at this level.
type Service struct {
	Resolver interfaces.ClusterResolver
	State    interfaces.StateStore
	Prober   interfaces.TunnelProber

	// Connect builds the cluster-scoped collaborators once the cluster URL
	// is known.
	Connect func(cluster interfaces.ClusterURL) Clients

	// TokenFilePath, when set, is removed after a reconfiguration once the
	// tunnel is confirmed up; on failure it is left in place so the
	// playbook can be re-run by hand.
	TokenFilePath string

	// TunnelSettleDelay is how long to wait after a successful apply before
	// confirming the tunnel for token file cleanup.
	TunnelSettleDelay time.Duration

	// Sleep defaults to time.Sleep; tests substitute a recorder.
	Sleep func(time.Duration)

	Log *slog.Logger
}

// Run executes one reconciliation. Fatal errors (resolution, remote queries,
// applier) propagate to the caller; persisted state is only ever written
// after the applier has succeeded, so any failed run leaves the state
// exactly as a from-scratch run would find it.
func (s *Service) Run(ctx context.Context) error {
	cluster, err := s.Resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	clients := s.Connect(cluster)

	persisted, err := s.State.Load()
	neverConfigured := errors.Is(err, interfaces.ErrNoStoredEvent)
	if err != nil && !neverConfigured {
		return fmt.Errorf("could not load persisted state: %w", err)
	}

	remote, err := clients.Events.EventID(ctx)
	if err != nil {
		return err
	}

	decision := s.decide(ctx, clients, neverConfigured, persisted, remote)
	if decision == interfaces.DecisionSkip {
		clients.Status.ReportInitStatus(ctx, "EID known")
		s.Log.Info("Event unchanged and tunnel healthy, nothing to do", "eventID", remote)
		return nil
	}

	if err := s.reconfigure(ctx, clients, remote); err != nil {
		return err
	}

	s.cleanupTokenFile(ctx)
	return nil
}

// decide implements the decision state machine. The prober is deliberately
// not consulted on the never-configured branch: there is no tunnel to check
// yet and probing would only delay the inevitable reconfiguration.
func (s *Service) decide(ctx context.Context, clients Clients, neverConfigured bool, persisted, remote interfaces.EventID) interfaces.Decision {
	if neverConfigured {
		clients.Status.ReportInitStatus(ctx, "EID unknown")
		s.Log.Info("No cached event ID, configuring unconditionally", "remoteEventID", remote)
		return interfaces.DecisionReconfigure
	}

	health := s.Prober.Connected(ctx)

	if !remote.Equal(persisted) {
		// A healthy tunnel to the wrong event is not a success state.
		s.Log.Info("New event detected, reconfiguring",
			"remoteEventID", remote, "cachedEventID", persisted, "tunnel", health)
		return interfaces.DecisionReconfigure
	}

	if health == interfaces.TunnelUnhealthy {
		s.Log.Info("Event unchanged but tunnel is down, reconfiguring", "eventID", remote)
		return interfaces.DecisionReconfigure
	}

	return interfaces.DecisionSkip
}

// reconfigure fetches a credential for the remote event, applies it, and
// persists the event only after the applier reports success.
func (s *Service) reconfigure(ctx context.Context, clients Clients, remote interfaces.EventID) error {
	clients.Status.ReportInitStatus(ctx, "Querying tunnel credential")
	credential, err := clients.Credentials.FetchCredential(ctx, remote)
	if err != nil {
		return err
	}

	clients.Status.ReportInitStatus(ctx, "Starting configure robot")
	if err := clients.Applier.Apply(ctx, credential); err != nil {
		clients.Status.ReportInitStatus(ctx, "Failed to configure robot")
		return err
	}

	if err := s.State.Save(remote); err != nil {
		// The tunnel is up but the next run will redo the work; still a
		// failed run so it gets noticed.
		return fmt.Errorf("configured but could not persist event ID: %w", err)
	}

	clients.Status.ReportInitStatus(ctx, "Robot configured")
	s.Log.Info("Tunnel configured and event ID cached", "eventID", remote)
	return nil
}

// cleanupTokenFile removes the cached credential file once the tunnel is
// confirmed up. If the tunnel has not come up yet the file stays so the
// playbook can be re-run manually with the same token.
func (s *Service) cleanupTokenFile(ctx context.Context) {
	if s.TokenFilePath == "" {
		return
	}
	if _, err := os.Stat(s.TokenFilePath); err != nil {
		return
	}

	if s.TunnelSettleDelay > 0 {
		s.sleep(s.TunnelSettleDelay)
	}

	if s.Prober.Connected(ctx) != interfaces.TunnelHealthy {
		s.Log.Info("Token file left in place, tunnel not confirmed yet", "path", s.TokenFilePath)
		return
	}

	if err := os.Remove(s.TokenFilePath); err != nil {
		s.Log.Warn("Could not remove token file", "path", s.TokenFilePath, "err", err)
		return
	}
	s.Log.Info("Tunnel established, removed token file", "path", s.TokenFilePath)
}

func (s *Service) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}
