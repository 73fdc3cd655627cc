// Package applier runs the configuration automation that actually brings the
// tunnel up. The automation is an external ansible playbook; its exit status
// is the only success signal, no structured output is parsed.
package applier

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hubrobotics/robot-config-service/interfaces"
	"github.com/hubrobotics/robot-config-service/retry"
)

// tokenFileEnv and clusterURLEnv are how the credential and hub URL reach
// the playbook.
const (
	tokenFileEnv  = "SKUPPER_TOKEN_FILE"
	clusterURLEnv = "RCS_HUBCONTROLLER_URL"
)

// defaultRunTimeout bounds a single playbook execution.
const defaultRunTimeout = 10 * time.Minute

// PlaybookApplier implements interfaces.ConfigApplier by executing an
// ansible playbook. The credential is written to a token file first so the
// playbook can also be re-run by hand if the service leaves it in place
// after a failure.
type PlaybookApplier struct {
	// PlaybookPath is the playbook file; the inventory is expected next to
	// it as <dir>/inventory and the playbook runs with <dir> as cwd.
	PlaybookPath string

	// TokenFilePath is where the credential is cached for the playbook.
	TokenFilePath string

	// Cluster is exported to the playbook so it can reach the hub.
	Cluster interfaces.ClusterURL

	// OutputLogPath, when non-empty, receives the full playbook
	// stdout/stderr of every attempt for post-mortem debugging.
	OutputLogPath string

	// Command overrides the playbook runner binary; defaults to
	// ansible-playbook. Used by tests.
	Command string

	// Verbose adds -vv to the playbook invocation.
	Verbose bool

	// RunTimeout bounds one playbook execution; defaults to 10 minutes.
	RunTimeout time.Duration

	// Retry is the budget for transient playbook failures.
	Retry retry.Policy

	Log *slog.Logger
}

// Apply writes the credential to the token file and runs the playbook within
// the retry budget. Any terminal failure is a *interfaces.ApplierError; the
// caller's persisted state is untouched by this method.
func (a *PlaybookApplier) Apply(ctx context.Context, credential interfaces.Credential) error {
	if err := a.writeTokenFile(credential); err != nil {
		return &interfaces.ApplierError{Err: err}
	}

	err := a.Retry.Do(ctx, func() error {
		return a.runOnce(ctx)
	})
	if err != nil {
		return &interfaces.ApplierError{Err: err}
	}
	return nil
}

// writeTokenFile caches the credential for the playbook, private to the
// service user.
func (a *PlaybookApplier) writeTokenFile(credential interfaces.Credential) error {
	if err := os.MkdirAll(filepath.Dir(a.TokenFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(a.TokenFilePath, []byte(credential), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// runOnce executes the playbook a single time.
func (a *PlaybookApplier) runOnce(ctx context.Context) error {
	timeout := a.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	playbookDir := filepath.Dir(a.PlaybookPath)
	args := []string{"-i", filepath.Join(playbookDir, "inventory"), filepath.Base(a.PlaybookPath)}
	if a.Verbose {
		args = append(args, "-vv")
	}

	cmd := exec.CommandContext(ctx, a.command(), args...)
	cmd.Dir = playbookDir
	cmd.Env = append(os.Environ(),
		tokenFileEnv+"="+a.TokenFilePath,
		clusterURLEnv+"="+a.Cluster.String(),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.Log.Info("Running configuration playbook", "playbook", a.PlaybookPath, "cmd", a.command())
	runErr := cmd.Run()

	a.appendOutputLog(runErr, stdout.Bytes(), stderr.Bytes())

	if runErr != nil {
		a.Log.Error("Playbook run failed", "err", runErr,
			"stdoutTail", tail(stdout.Bytes()), "stderrTail", tail(stderr.Bytes()))
		return fmt.Errorf("playbook run failed: %w", runErr)
	}

	a.Log.Info("Playbook completed successfully")
	return nil
}

// appendOutputLog appends the full playbook output to the output log file so
// truncated log lines never hide the real ansible failure.
func (a *PlaybookApplier) appendOutputLog(runErr error, stdout, stderr []byte) {
	if a.OutputLogPath == "" {
		return
	}

	f, err := os.OpenFile(a.OutputLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		a.Log.Warn("Could not open playbook output log", "path", a.OutputLogPath, "err", err)
		return
	}
	defer f.Close()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n%s\n[%s] playbook=%s err=%v\n%s\n",
		separator, time.Now().Format(time.DateTime), a.PlaybookPath, runErr, separator)
	if len(stdout) > 0 {
		buf.WriteString("--- stdout ---\n")
		buf.Write(stdout)
		if stdout[len(stdout)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	if len(stderr) > 0 {
		buf.WriteString("--- stderr ---\n")
		buf.Write(stderr)
		if stderr[len(stderr)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		a.Log.Warn("Could not write playbook output log", "path", a.OutputLogPath, "err", err)
	}
}

const separator = "============================================================"

// tail returns the last 4KiB of output for inline logging.
func tail(out []byte) string {
	const max = 4096
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}

func (a *PlaybookApplier) command() string {
	if a.Command != "" {
		return a.Command
	}
	return "ansible-playbook"
}
