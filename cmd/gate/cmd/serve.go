package cmd

import (
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/api"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the gate HTTP API.

Endpoints:
  GET  /health
  GET  /metrics
  POST /api/v1/evaluate
  POST /api/v1/review
  GET  /api/v1/policy
  GET  /api/v1/reports
  GET  /api/v1/reports/{id}

The policy section of the config file is reloaded when the file changes.
Review is available only when a generation provider is configured.

Examples:
  gate serve
  gate serve --host 0.0.0.0 --port 3000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost    string
	servePort    int
	serveNoWatch bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "host address to bind to (default server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default server.port)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not reload the policy when the config file changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{optionalSampling: true, telemetry: true})
	if err != nil {
		return err
	}
	defer a.Close()

	host, port := a.cfg.Server.Host, a.cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	server := api.NewServer(a.guard,
		api.WithLogger(a.logger.WithComponent("api")),
		api.WithTelemetry(a.telemetry),
		api.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		api.WithMaxBodyBytes(a.cfg.Server.MaxBodyBytes),
		api.WithRequestTimeout(a.cfg.Server.WriteTimeout),
	)

	if !serveNoWatch && a.loader.ConfigFile() != "" {
		a.watchPolicy()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if err := server.ListenAndServe(ctx, addr, a.cfg.Server.ReadTimeout, a.cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// watchPolicy hot-reloads the policy section when the config file changes.
// Invalid edits are logged and the running policy is kept.
func (a *app) watchPolicy() {
	v := a.loader.Viper()
	v.OnConfigChange(func(e fsnotify.Event) {
		a.reloadPolicy(e)
	})
	v.WatchConfig()
	a.logger.Info("watching config for policy changes", "file", a.loader.ConfigFile())
}

func (a *app) reloadPolicy(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := a.loader.Reload()
	if err != nil {
		a.logger.Warn("config reload failed", "error", err)
		return
	}
	if err := config.ValidateConfig(cfg); err != nil {
		a.logger.Warn("reloaded config is invalid, keeping current policy", "error", err)
		return
	}
	policy, err := cfg.PolicyConfig()
	if err != nil {
		a.logger.Warn("reloaded policy is invalid, keeping current policy", "error", err)
		return
	}
	if err := a.guard.SetPolicy(policy); err != nil {
		a.logger.Warn("reloaded policy rejected, keeping current policy", "error", err)
		return
	}
	a.logger.Info("policy reloaded", "min_confidence", policy.MinConfidence, "num_samples", policy.NumSamples)
}
