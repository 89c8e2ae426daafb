package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boristopalov/networkgym/internal/telemetry"
	"github.com/boristopalov/networkgym/pkg/adapter"
	"github.com/boristopalov/networkgym/pkg/agent"
	"github.com/boristopalov/networkgym/pkg/config"
	"github.com/boristopalov/networkgym/pkg/environment"
	"github.com/boristopalov/networkgym/pkg/experiment"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/recorder"
	"github.com/boristopalov/networkgym/pkg/simulator"
	"github.com/boristopalov/networkgym/pkg/wrappers"
)

type runFlags struct {
	configPath string
	clients    int
	seed       uint64
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play every episode of a session with the configured agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var seed *uint64
			if cmd.Flags().Changed("seed") {
				seed = &f.seed
			}
			return runSession(cmd.Context(), f, seed)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "netgym.yaml", "path to the YAML config")
	cmd.Flags().IntVarP(&f.clients, "clients", "n", 1, "number of concurrent clients, counting up from client_id")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "seed for the first reset; client i uses seed+i")
	return cmd
}

func runSession(ctx context.Context, f runFlags, seed *uint64) error {
	if f.clients < 1 {
		return fmt.Errorf("--clients must be at least 1, got %d", f.clients)
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	rec, err := openRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn("close recorder", "error", err)
		}
	}()

	transport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}

	runners := make([]*experiment.Runner, 0, f.clients)
	for i := range f.clients {
		id := cfg.ClientID + i
		identity := cfg.IdentityFor(id)
		clientLogger := logger.With("client", identity)

		a, err := adapter.New(cfg.EnvName, cfg.AdapterParams())
		if err != nil {
			return err
		}
		env, err := environment.New(ctx, cfg.Environment(id), a, transport, environment.WithLogger(clientLogger))
		if err != nil {
			return fmt.Errorf("client %s: %w", identity, err)
		}
		defer env.Close()

		wrapped, err := wrappers.Apply(env, cfg.Wrappers)
		if err != nil {
			return err
		}
		ag, err := agent.New(cfg.RL.Agent,
			agent.WithAgentID(identity),
			agent.WithActionSpace(wrapped.ActionSpace()),
			agent.WithAction(cfg.RL.ConstantAction),
			agent.WithRand(rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano())))),
		)
		if err != nil {
			return err
		}

		opts := []experiment.Option{experiment.WithRecorder(rec), experiment.WithLogger(clientLogger)}
		if seed != nil {
			opts = append(opts, experiment.WithSeed(*seed+uint64(i)))
		}
		runners = append(runners, experiment.NewRunner(wrapped, ag, opts...))
		logger.Info("client ready",
			"client", identity,
			"env", cfg.EnvName,
			"agent", cfg.RL.Agent,
			"obs_space", wrapped.ObservationSpace().String(),
			"action_space", wrapped.ActionSpace().String(),
		)
	}

	err = experiment.RunParallel(ctx, runners...)
	for _, r := range runners {
		status := r.GetStatus()
		logger.Info("run summary",
			"run_id", r.RunID(),
			"episodes", status.Episodes,
			"steps", status.Steps,
			"recent_returns", r.RecentReturns(),
			"errors", len(status.Errors),
		)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info("interrupted")
		return nil
	}
	return err
}

func openRecorder(ctx context.Context, cfg *config.Config) (recorder.Recorder, error) {
	var sinks recorder.Multi
	if cfg.Recorder.CSVPath != "" {
		c, err := recorder.NewCSVFile(cfg.Recorder.CSVPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, c)
	}
	if cfg.Recorder.SQLitePath != "" {
		s, err := recorder.OpenSQLite(ctx, cfg.Recorder.SQLitePath)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return recorder.Discard{}, nil
	}
	return sinks, nil
}

// newTransport dials the configured server, or serves an in-process simulator for
// the loopback transport until ctx is done.
func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (northbound.Transport, error) {
	switch cfg.Server.Transport {
	case config.TransportLoopback:
		simLogger := logger.With("component", "simulator")
		tr, _, err := simulator.ServeLoopback(ctx, simulator.New(simulator.WithLogger(simLogger)), simLogger)
		if err != nil {
			return nil, err
		}
		return tr, nil
	default:
		return northbound.ZMQTransport{}, nil
	}
}
