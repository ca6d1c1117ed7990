// Command shortlist-node is the Shortlist process entrypoint: a single
// executable that runs the Node state machine, the Governor, and the
// Healer, wired together per spec.md §6's CLI surface. Its command
// structure is grounded on cmd/warren/main.go's root-command/persistent-
// flags/cobra.OnInitialize/signal-handling shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/shortlist/internal/config"
	"github.com/cuemby/shortlist/internal/governor"
	"github.com/cuemby/shortlist/internal/healer"
	"github.com/cuemby/shortlist/internal/lease"
	"github.com/cuemby/shortlist/internal/metrics"
	"github.com/cuemby/shortlist/internal/node"
	"github.com/cuemby/shortlist/internal/renderer"
	"github.com/cuemby/shortlist/internal/repoclient"
	"github.com/cuemby/shortlist/internal/store"
	"github.com/cuemby/shortlist/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shortlist-node",
	Short: "Shortlist: a leaderless distributed task-execution swarm coordinated over Git",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("repo", ".", "Local working tree of the coordination repository")
	runCmd.Flags().String("branch", "main", "Coordination branch name")
	runCmd.Flags().String("region", "", "Region override for required_region tasks (also via SHORTLIST_REGION)")
	runCmd.Flags().String("roles", "", "Comma-separated eligible required_role values; \"governor\" or \"healer\" run only that loop")
	runCmd.Flags().String("node-id", "", "Node identifier; generated if empty")
	runCmd.Flags().String("renderer-registry", "renderers.yaml", "Path to the renderer descriptor registry")
	runCmd.Flags().String("containerd-socket", "/run/containerd/containerd.sock", "containerd API socket path")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Bind address for the local Prometheus endpoint (empty disables it)")
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this process's Shortlist loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath, _ := cmd.Flags().GetString("repo")
		branch, _ := cmd.Flags().GetString("branch")
		region, _ := cmd.Flags().GetString("region")
		rolesCSV, _ := cmd.Flags().GetString("roles")
		nodeID, _ := cmd.Flags().GetString("node-id")
		registryPath, _ := cmd.Flags().GetString("renderer-registry")
		containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg := config.Default()
		cfg.RepoPath = repoPath
		cfg.Branch = branch
		cfg.Region = region
		cfg.Roles = config.ParseRoles(rolesCSV)
		cfg.NodeID = nodeID
		cfg.RendererRegistryPath = registryPath
		cfg.ContainerdSocket = containerdSocket
		cfg.MetricsAddr = metricsAddr
		cfg = cfg.RegionFromEnv().WithGeneratedNodeID()

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		l := log.WithNode(cfg.NodeID).With().Str("region", cfg.Region).Logger()
		l.Info().Strs("roles", cfg.Roles).Msg("starting shortlist-node")

		repo := repoclient.New(cfg.RepoPath, cfg.Branch)
		st := store.New(repo)
		clock := lease.New(cfg.LeaseDuration, cfg.RenewalThreshold, cfg.GracePeriod)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			l.Info().Msg("shutdown signal received, stopping at next safe checkpoint")
			cancel()
		}()

		if cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					l.Warn().Err(err).Msg("metrics server stopped")
				}
			}()
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			runLoops(ctx, cfg, st, clock)
		}()

		<-ctx.Done()
		<-done
		l.Info().Msg("shutdown complete")
		return nil
	},
}

// runLoops starts whichever of Node/Governor/Healer this process's roles
// call for. A bare "governor" or "healer" role runs only that loop
// (spec.md §2's "independent execution contexts" taken to their limit, one
// process per loop); otherwise all three run together in this process, per
// spec.md §5's "one OS process per participant" scheduling model.
func runLoops(ctx context.Context, cfg config.Config, st *store.Store, clock lease.Clock) {
	switch {
	case cfg.HasRole("governor"):
		governor.New(cfg, st).Run(ctx)
	case cfg.HasRole("healer"):
		healer.New(cfg, st, clock).Run(ctx)
	default:
		rt, err := renderer.NewRuntime(cfg.ContainerdSocket)
		if err != nil {
			log.WithComponent("main").Warn().Err(err).Msg("containerd unavailable, renderer supervision disabled")
		} else {
			defer rt.Close()
		}
		registry, err := renderer.LoadRegistry(cfg.RendererRegistryPath)
		if err != nil {
			log.WithComponent("main").Warn().Err(err).Msg("failed to load renderer registry")
			registry = renderer.EmptyRegistry()
		}

		n := node.New(cfg, st, clock, registry, rt)

		done := make(chan struct{}, 2)
		go func() { n.Run(ctx); done <- struct{}{} }()
		go func() { governor.New(cfg, st).Run(ctx); done <- struct{}{} }()
		go func() { healer.New(cfg, st, clock).Run(ctx); done <- struct{}{} }()
		<-done
		<-done
		<-done
	}
}
