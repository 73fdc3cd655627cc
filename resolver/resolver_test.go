package resolver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubrobotics/robot-config-service/interfaces"
	"github.com/hubrobotics/robot-config-service/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_PointerIsCluster(t *testing.T) {
	c := &Client{
		PointerURL:       "https://hub.example.com/entry?robot=r2d2",
		PointerIsCluster: true,
		Log:              testLogger(),
	}

	cluster, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, interfaces.ClusterURL("https://hub.example.com/entry"), cluster)
}

func TestResolve_FollowsRedirectChainWithAuthOnEveryHop(t *testing.T) {
	var finalAuthed atomic.Bool

	// Final host, distinct from the pointer host: auth must be re-applied.
	finalMux := chi.NewRouter()
	finalMux.Get("/cluster/", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		finalAuthed.Store(ok && user == "robot" && pass == "secret")
		w.WriteHeader(http.StatusOK)
	})
	final := httptest.NewServer(finalMux)
	defer final.Close()

	pointerMux := chi.NewRouter()
	pointerMux.Get("/entry", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		// Relative redirect first, then cross-host.
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	pointerMux.Get("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/cluster/?session=1", http.StatusFound)
	})
	pointer := httptest.NewServer(pointerMux)
	defer pointer.Close()

	c := &Client{
		PointerURL: pointer.URL + "/entry",
		Username:   "robot",
		Password:   "secret",
		Retry:      retry.Policy{MaxAttempts: 1},
		Log:        testLogger(),
	}

	cluster, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, interfaces.ClusterURL(final.URL+"/cluster"), cluster)
	assert.True(t, finalAuthed.Load(), "basic auth must be sent on the cross-host hop")
}

func TestResolve_RetriesExhaustedOn503(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &Client{
		PointerURL: srv.URL,
		Retry:      retry.Policy{MaxAttempts: 3},
		Log:        testLogger(),
	}

	_, err := c.Resolve(context.Background())
	require.Error(t, err)

	var resErr *interfaces.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, int32(3), requests.Load())
}

func TestResolve_AuthRejectionIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &Client{
		PointerURL: srv.URL,
		Username:   "robot",
		Password:   "wrong",
		Retry:      retry.Policy{MaxAttempts: 5},
		Log:        testLogger(),
	}

	_, err := c.Resolve(context.Background())
	require.Error(t, err)

	var resErr *interfaces.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.ErrorIs(t, err, errAuthRejected)
	assert.Equal(t, int32(1), requests.Load(), "401 must not be retried")
}

func TestResolve_DetectsRedirectLoop(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Redirect(w, r, "/", http.StatusFound)
	}))
	defer srv.Close()

	c := &Client{
		PointerURL: srv.URL + "/",
		Retry:      retry.Policy{MaxAttempts: 3},
		Log:        testLogger(),
	}

	_, err := c.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect loop")
	assert.Equal(t, int32(1), requests.Load(), "loop detection must not be retried")
}

func TestGitHubResolver_FallsBackToCatchAll(t *testing.T) {
	mux := chi.NewRouter()
	mux.Get("/acme/fleet/main/robot-7", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.Get("/acme/fleet/main/catch-all", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token gh-secret", r.Header.Get("Authorization"))
		w.Write([]byte("https://hub.example.com/cluster\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := &GitHubResolver{
		RepoURL:   "https://github.com/acme/fleet.git",
		Token:     "gh-secret",
		RobotName: "robot-7",
		Log:       testLogger(),
	}

	cluster, err := r.fetchClusterURL(context.Background(), srv.URL+"/acme/fleet/main")
	require.NoError(t, err)
	assert.Equal(t, interfaces.ClusterURL("https://hub.example.com/cluster"), cluster)
}

func TestGitHubResolver_NoFileAnywhere(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := &GitHubResolver{
		RepoURL:   "https://github.com/acme/fleet",
		RobotName: "robot-7",
		Log:       testLogger(),
	}

	_, err := r.fetchClusterURL(context.Background(), srv.URL+"/acme/fleet/main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cluster URL found")
}

func TestGitHubResolver_RejectsNonGitHubRepo(t *testing.T) {
	r := &GitHubResolver{
		RepoURL:   "https://gitlab.example.com/acme/fleet",
		RobotName: "robot-7",
		Log:       testLogger(),
	}

	_, err := r.Resolve(context.Background())
	require.Error(t, err)

	var resErr *interfaces.ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestGitHubResolver_RawBaseDerivation(t *testing.T) {
	r := &GitHubResolver{RepoURL: "https://github.com/acme/fleet.git", Branch: "prod"}
	base, err := r.rawBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/fleet/prod", base)

	r = &GitHubResolver{RepoURL: "https://github.com/acme/fleet"}
	base, err = r.rawBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/fleet/main", base)

	r = &GitHubResolver{RepoURL: "https://github.com/just-an-owner"}
	_, err = r.rawBaseURL()
	require.Error(t, err)
}
