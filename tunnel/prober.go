// Package tunnel probes the skupper agent for evidence that the tunnel to a
// remote site is actually established. Probing requires positive textual
// confirmation so a skupper daemon that is still starting after boot is not
// mistaken for a working tunnel.
package tunnel

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/hubrobotics/robot-config-service/interfaces"
)

// StatusFunc returns the tunnel agent's status output. The default runs
// `skupper status -n skupper`; tests substitute canned outputs.
type StatusFunc func(ctx context.Context) (string, error)

// statusTimeout bounds a single status invocation.
const statusTimeout = 10 * time.Second

// SkupperStatus is the production StatusFunc. A missing binary or a non-zero
// exit surfaces as an error, which the prober counts as a negative probe.
func SkupperStatus(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "skupper", "status", "-n", "skupper").Output()
	return string(out), err
}

// Prober determines tunnel health with a bounded probe budget. A single
// negative probe never decides anything: the tunnel is unhealthy only when
// every probe in the budget comes back negative, and healthy as soon as any
// one succeeds.
type Prober struct {
	// Status produces the agent's status output; defaults to SkupperStatus.
	Status StatusFunc

	// InitialDelay is slept once before the very first probe of a run, as a
	// grace period for the network stack and tunnel agent after boot. It is
	// not repeated between retries.
	InitialDelay time.Duration

	// Interval is the wait between consecutive probes.
	Interval time.Duration

	// Retries is the total number of probes; values below 1 mean one probe.
	Retries int

	// Sleep defaults to time.Sleep; tests substitute a recorder.
	Sleep func(time.Duration)

	Log *slog.Logger
}

// Connected runs the probe loop and reports the tunnel status.
func (p *Prober) Connected(ctx context.Context) interfaces.TunnelStatus {
	retries := p.Retries
	if retries < 1 {
		retries = 1
	}

	if p.InitialDelay > 0 {
		p.Log.Info("Waiting before first tunnel probe", "delay", p.InitialDelay)
		p.sleep(p.InitialDelay)
	}

	for attempt := 1; attempt <= retries; attempt++ {
		if p.probeOnce(ctx, attempt) {
			return interfaces.TunnelHealthy
		}
		if attempt < retries && p.Interval > 0 {
			p.sleep(p.Interval)
		}
	}

	p.Log.Info("Tunnel not connected after all probes", "probes", retries)
	return interfaces.TunnelUnhealthy
}

// probeOnce runs one status check. Tool failures are negative probes, not
// errors: a broken local CLI must not crash the run before the engine can
// decide to just reconfigure.
func (p *Prober) probeOnce(ctx context.Context, attempt int) bool {
	out, err := p.status()(ctx)
	if err != nil {
		p.Log.Warn("Tunnel status check failed", "attempt", attempt, "err", err)
		return false
	}

	// The disconnected output reads "not connected to any other sites", which
	// also contains both markers, so the negated form is checked explicitly.
	lower := strings.ToLower(out)
	connected := strings.Contains(lower, "connected to") &&
		strings.Contains(lower, "other site") &&
		!strings.Contains(lower, "not connected")
	if connected {
		p.Log.Info("Tunnel is up and connected", "attempt", attempt)
		return true
	}

	p.Log.Info("Tunnel agent running but not connected to any other site", "attempt", attempt)
	p.Log.Debug("Tunnel status output", "output", out)
	return false
}

func (p *Prober) status() StatusFunc {
	if p.Status != nil {
		return p.Status
	}
	return SkupperStatus
}

func (p *Prober) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}
