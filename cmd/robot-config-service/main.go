// The robot-config-service binary runs once at boot on the robot. It
// resolves the currently active hub cluster, decides whether the tunnel must
// be (re)configured for the current event, and if so fetches a tunnel
// credential and applies the configuration playbook. Recovery from any
// failure is the next invocation, typically the next boot.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/hubrobotics/robot-config-service/applier"
	"github.com/hubrobotics/robot-config-service/cluster"
	"github.com/hubrobotics/robot-config-service/common"
	"github.com/hubrobotics/robot-config-service/interfaces"
	"github.com/hubrobotics/robot-config-service/resolver"
	"github.com/hubrobotics/robot-config-service/retry"
	"github.com/hubrobotics/robot-config-service/service"
	"github.com/hubrobotics/robot-config-service/state"
	"github.com/hubrobotics/robot-config-service/tunnel"
)

var endpointFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "redirect-url",
		Usage:   "fixed pointer URL that redirects to the active hub cluster",
		EnvVars: []string{"REDIRECT_URL"},
	},
	&cli.BoolFlag{
		Name:    "redirect-url-is-cluster",
		Usage:   "treat the redirect URL as the cluster base URL, do not follow redirects",
		EnvVars: []string{"REDIRECT_URL_IS_CLUSTER"},
	},
	&cli.StringFlag{
		Name:    "api-username",
		Usage:   "hub controller basic auth username",
		EnvVars: []string{"API_USERNAME", "RCS_HUBCONTROLLER_USER"},
	},
	&cli.StringFlag{
		Name:    "api-password",
		Usage:   "hub controller basic auth password",
		EnvVars: []string{"API_PASSWORD", "RCS_HUBCONTROLLER_PASSWORD"},
	},
	&cli.IntFlag{
		Name:    "redirect-retries",
		Value:   3,
		Usage:   "attempts to resolve the cluster URL before giving up",
		EnvVars: []string{"REDIRECT_RETRIES"},
	},
	&cli.IntFlag{
		Name:    "redirect-retry-delay",
		Value:   10,
		Usage:   "seconds between cluster resolution attempts",
		EnvVars: []string{"REDIRECT_RETRY_DELAY"},
	},
	&cli.StringFlag{
		Name:    "git-repo",
		Usage:   "GitHub repo URL holding per-robot cluster URL files; overrides redirect resolution",
		EnvVars: []string{"RCS_GIT_REPO"},
	},
	&cli.StringFlag{
		Name:    "git-branch",
		Value:   "main",
		Usage:   "branch to read cluster URL files from",
		EnvVars: []string{"RCS_GIT_BRANCH"},
	},
	&cli.StringFlag{
		Name:    "gh-token",
		Usage:   "GitHub token for private cluster URL repositories",
		EnvVars: []string{"RCS_GH_TOKEN"},
	},
}

var tunnelFlags = []cli.Flag{
	&cli.IntFlag{
		Name:    "tunnel-check-initial-delay",
		Value:   15,
		Usage:   "seconds to wait before the first tunnel probe (boot grace period)",
		EnvVars: []string{"TUNNEL_CHECK_INITIAL_DELAY"},
	},
	&cli.IntFlag{
		Name:    "tunnel-check-retries",
		Value:   3,
		Usage:   "number of tunnel probes before concluding the tunnel is down",
		EnvVars: []string{"TUNNEL_CHECK_RETRIES"},
	},
	&cli.IntFlag{
		Name:    "tunnel-check-interval",
		Value:   10,
		Usage:   "seconds between tunnel probes",
		EnvVars: []string{"TUNNEL_CHECK_INTERVAL"},
	},
}

var applierFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "playbook",
		Value:   "/opt/robot-config-service/ansible/configure-robot.yml",
		Usage:   "path to the configuration playbook",
		EnvVars: []string{"ANSIBLE_PLAYBOOK_PATH"},
	},
	&cli.StringFlag{
		Name:    "token-file",
		Value:   "/var/run/robot-config-service/skupper-token",
		Usage:   "path the tunnel credential is cached at for the playbook",
		EnvVars: []string{"SKUPPER_TOKEN_FILE"},
	},
	&cli.StringFlag{
		Name:    "ansible-output-log",
		Value:   "/var/log/robot-config-service-ansible.log",
		Usage:   "file the full playbook output is appended to; empty disables",
		EnvVars: []string{"ANSIBLE_OUTPUT_LOG"},
	},
	&cli.IntFlag{
		Name:    "playbook-retries",
		Value:   2,
		Usage:   "playbook attempts for transient failures",
		EnvVars: []string{"PLAYBOOK_RETRIES"},
	},
	&cli.IntFlag{
		Name:    "playbook-retry-delay",
		Value:   30,
		Usage:   "seconds between playbook attempts",
		EnvVars: []string{"PLAYBOOK_RETRY_DELAY"},
	},
}

var serviceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "state-file",
		Value:   "/var/run/robot-config-service/eventid",
		Usage:   "file holding the last successfully configured event ID",
		EnvVars: []string{"EVENT_ID_FILE"},
	},
	&cli.StringFlag{
		Name:    "robot-name",
		Usage:   "robot identity reported to the hub; defaults to the hostname",
		EnvVars: []string{"ROBOT_NAME"},
	},
	&cli.IntFlag{
		Name:    "startup-delay",
		Value:   0,
		Usage:   "seconds to wait before doing anything (e.g. until the network is ready at boot)",
		EnvVars: []string{"SERVICE_STARTUP_DELAY"},
	},
	&cli.IntFlag{
		Name:    "token-retries",
		Value:   60,
		Usage:   "attempts to obtain a tunnel credential while the hub prepares one",
		EnvVars: []string{"TOKEN_RETRIES"},
	},
	&cli.IntFlag{
		Name:    "token-retry-delay",
		Value:   5,
		Usage:   "seconds between tunnel credential attempts",
		EnvVars: []string{"TOKEN_RETRY_DELAY"},
	},
}

var logFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "INFO",
		Usage:   "log level: INFO or DEBUG",
		EnvVars: []string{"LOG_LEVEL"},
	},
	&cli.BoolFlag{
		Name:    "log-json",
		Usage:   "log in JSON format",
		EnvVars: []string{"LOG_JSON"},
	},
	&cli.BoolFlag{
		Name:    "log-uid",
		Usage:   "generate a uuid and add to all log messages",
		EnvVars: []string{"LOG_UID"},
	},
}

func main() {
	// Best-effort env file, mainly for the systemd unit and manual runs.
	godotenv.Load()

	app := &cli.App{
		Name:  "robot-config-service",
		Usage: "One-shot boot service configuring the robot's tunnel to the active hub cluster",
		Flags: concat(endpointFlags, tunnelFlags, applierFlags, serviceFlags, logFlags),
		Action: func(cCtx *cli.Context) error {
			return run(cCtx)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

func run(cCtx *cli.Context) error {
	debug := strings.EqualFold(cCtx.String("log-level"), "DEBUG")
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   debug,
		JSON:    cCtx.Bool("log-json"),
		Service: "robot-config-service",
		Version: common.Version,
	})
	if cCtx.Bool("log-uid") {
		logger = logger.With("uid", uuid.Must(uuid.NewRandom()).String())
	}

	redirectURL := cCtx.String("redirect-url")
	gitRepo := cCtx.String("git-repo")
	if redirectURL == "" && gitRepo == "" {
		logger.Error("Either REDIRECT_URL or RCS_GIT_REPO is required, service cannot run")
		return fmt.Errorf("either REDIRECT_URL or RCS_GIT_REPO must be set")
	}

	robotName := cCtx.String("robot-name")
	if robotName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("could not determine robot name: %w", err)
		}
		robotName = hostname
	}
	logger.Info("Robot config service starting", "robot", robotName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if delay := seconds(cCtx, "startup-delay"); delay > 0 {
		logger.Info("Waiting before starting", "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	resolveRetry := retry.Policy{
		MaxAttempts: cCtx.Int("redirect-retries"),
		Delay:       seconds(cCtx, "redirect-retry-delay"),
		Log:         logger,
	}

	var clusterResolver interfaces.ClusterResolver
	if gitRepo != "" {
		logger.Info("Cluster URL source: GitHub", "repo", gitRepo)
		clusterResolver = &resolver.GitHubResolver{
			RepoURL:   gitRepo,
			Branch:    cCtx.String("git-branch"),
			Token:     cCtx.String("gh-token"),
			RobotName: robotName,
			Retry:     resolveRetry,
			Log:       logger,
		}
	} else {
		logger.Info("Cluster URL source: redirect pointer", "url", redirectURL)
		clusterResolver = &resolver.Client{
			PointerURL:       redirectURL,
			PointerIsCluster: cCtx.Bool("redirect-url-is-cluster"),
			Username:         cCtx.String("api-username"),
			Password:         cCtx.String("api-password"),
			Retry:            resolveRetry,
			Log:              logger,
		}
	}

	prober := &tunnel.Prober{
		InitialDelay: seconds(cCtx, "tunnel-check-initial-delay"),
		Interval:     seconds(cCtx, "tunnel-check-interval"),
		Retries:      cCtx.Int("tunnel-check-retries"),
		Log:          logger,
	}

	tokenFile := cCtx.String("token-file")

	svc := &service.Service{
		Resolver: clusterResolver,
		State:    state.NewFileStore(cCtx.String("state-file"), logger),
		Prober:   prober,
		Connect: func(clusterURL interfaces.ClusterURL) service.Clients {
			client := &cluster.Client{
				Cluster:   clusterURL,
				RobotName: robotName,
				Username:  cCtx.String("api-username"),
				Password:  cCtx.String("api-password"),
				TokenRetry: retry.Policy{
					MaxAttempts: cCtx.Int("token-retries"),
					Delay:       seconds(cCtx, "token-retry-delay"),
					Log:         logger,
				},
				Log: logger,
			}
			return service.Clients{
				Events:      client,
				Credentials: client,
				Status:      client,
				Applier: &applier.PlaybookApplier{
					PlaybookPath:  cCtx.String("playbook"),
					TokenFilePath: tokenFile,
					Cluster:       clusterURL,
					OutputLogPath: cCtx.String("ansible-output-log"),
					Verbose:       debug,
					Retry: retry.Policy{
						MaxAttempts: cCtx.Int("playbook-retries"),
						Delay:       seconds(cCtx, "playbook-retry-delay"),
						Log:         logger,
					},
					Log: logger,
				},
			}
		},
		TokenFilePath:     tokenFile,
		TunnelSettleDelay: 15 * time.Second,
		Log:               logger,
	}

	if err := svc.Run(ctx); err != nil {
		logger.Error("Robot config service failed", "err", err)
		return err
	}

	logger.Info("Robot config service completed successfully")
	return nil
}

func seconds(cCtx *cli.Context, name string) time.Duration {
	return time.Duration(cCtx.Int(name)) * time.Second
}
