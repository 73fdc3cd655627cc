package resolver

import (
	"context"
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

// GitHubResolver resolves the active cluster from a file in a GitHub
// repository instead of the redirect pointer. The repository holds one file
// per robot (named after the robot) plus a catch-all file, each containing
// the cluster base URL. Lookups go through raw.githubusercontent.com with an
// optional token for private repositories.
type GitHubResolver struct {
	// RepoURL is the repository URL, e.g. https://github.com/org/repo.git.
	RepoURL string

	// Branch to read from; defaults to main.
	Branch string

	// Token authenticates raw content requests for private repositories.
	Token string

	// RobotName selects the per-robot file; the catch-all file is tried
	// when no per-robot file exists.
	RobotName string

	HTTPClient *http.Client
	Retry      retry.Policy
	Log        *slog.Logger
}

// catchAllName is the fallback file consulted when no per-robot file exists.
const catchAllName = "catch-all"

// Resolve fetches the cluster URL from the repository, trying the per-robot
// file first and the catch-all second, within the configured retry budget.
func (r *GitHubResolver) Resolve(ctx context.Context) (interfaces.ClusterURL, error) {
	rawBase, err := r.rawBaseURL()
	if err != nil {
		return "", &interfaces.ResolutionError{Err: err}
	}

	var cluster interfaces.ClusterURL
	err = r.Retry.Do(ctx, func() error {
		var attemptErr error
		cluster, attemptErr = r.fetchClusterURL(ctx, rawBase)
		return attemptErr
	})
	if err != nil {
		return "", &interfaces.ResolutionError{Err: err}
	}

	r.Log.Info("Resolved cluster URL from GitHub", "cluster", cluster)
	return cluster, nil
}

// rawBaseURL derives the raw.githubusercontent.com base from the repository
// URL.
func (r *GitHubResolver) rawBaseURL() (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(r.RepoURL))
	if err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}
	if parsed.Host != "github.com" {
		return "", fmt.Errorf("not a GitHub repository URL: %s", r.RepoURL)
	}

	path := strings.Trim(parsed.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if !strings.Contains(path, "/") {
		return "", fmt.Errorf("repository URL missing owner or name: %s", r.RepoURL)
	}

	branch := r.Branch
	if branch == "" {
		branch = "main"
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s", path, branch), nil
}

func (r *GitHubResolver) fetchClusterURL(ctx context.Context, rawBase string) (interfaces.ClusterURL, error) {
	for _, name := range []string{r.RobotName, catchAllName} {
		if name == "" {
			continue
		}

		fileURL := rawBase + "/" + name
		r.Log.Debug("Fetching cluster URL file", "url", fileURL)

		body, status, err := r.fetch(ctx, fileURL)
		if err != nil {
			r.Log.Warn("Cluster URL fetch failed", "url", fileURL, "err", err)
			continue
		}
		if status == http.StatusNotFound {
			continue
		}
		if status != http.StatusOK {
			r.Log.Warn("Unexpected status for cluster URL file", "url", fileURL, "status", status)
			continue
		}

		cluster, err := interfaces.NewClusterURL(string(body))
		if err != nil {
			r.Log.Warn("Cluster URL file holds an invalid URL", "url", fileURL, "err", err)
			continue
		}
		return cluster, nil
	}

	return "", fmt.Errorf("no cluster URL found for %q or %q", r.RobotName, catchAllName)
}

func (r *GitHubResolver) fetch(ctx context.Context, fileURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "token "+r.Token)
	}

	resp, err := r.httpClient().Do(req)
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

func (r *GitHubResolver) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
