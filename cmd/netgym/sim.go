package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boristopalov/networkgym/pkg/config"
	"github.com/boristopalov/networkgym/pkg/simulator"
)

type simFlags struct {
	port         int
	username     string
	password     string
	maxSessions  int
	splitReports bool
	logLevel     string
	logFormat    string
}

func newSimCmd() *cobra.Command {
	var f simFlags
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Serve the built-in measurement simulator over ZMQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveSim(cmd.Context(), f)
		},
	}
	cmd.Flags().IntVarP(&f.port, "port", "p", 8088, "listen port")
	cmd.Flags().StringVar(&f.username, "username", os.Getenv("NETGYM_SESSION_NAME"), "PLAIN username; empty disables authentication")
	cmd.Flags().StringVar(&f.password, "password", os.Getenv("NETGYM_SESSION_KEY"), "PLAIN password")
	cmd.Flags().IntVar(&f.maxSessions, "max-sessions", 0, "concurrent simulations before clients get no available worker; 0 is unlimited")
	cmd.Flags().BoolVar(&f.splitReports, "split-reports", false, "send every measurement in two reports")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "text or json")
	return cmd
}

func serveSim(ctx context.Context, f simFlags) error {
	logger := config.LogConfig{Level: f.logLevel, Format: f.logFormat}.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []simulator.Option{simulator.WithLogger(logger), simulator.WithMaxSessions(f.maxSessions)}
	if f.splitReports {
		opts = append(opts, simulator.WithSplitReports())
	}
	err := simulator.ServeZMQ(ctx, simulator.ZMQConfig{
		Addr:     fmt.Sprintf("tcp://*:%d", f.port),
		Username: f.username,
		Password: f.password,
	}, simulator.New(opts...), logger, nil)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
