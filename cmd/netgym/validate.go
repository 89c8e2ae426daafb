package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boristopalov/networkgym/pkg/adapter"
	"github.com/boristopalov/networkgym/pkg/config"
)

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a config file and print the session it describes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a, err := adapter.New(cfg.EnvName, cfg.AdapterParams())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "client:       %s\n", cfg.Identity())
			fmt.Fprintf(out, "server:       %s\n", cfg.Endpoint(cfg.ClientID).Address())
			fmt.Fprintf(out, "env:          %s\n", cfg.EnvName)
			fmt.Fprintf(out, "episodes:     %d x %d steps\n", cfg.EpisodesPerSession, cfg.StepsPerEpisode)
			fmt.Fprintf(out, "end time:     %d ms\n", cfg.EnvEndTimeMs())
			fmt.Fprintf(out, "observation:  %s\n", a.ObservationSpace())
			fmt.Fprintf(out, "action:       %s\n", a.ActionSpace())
			fmt.Fprintf(out, "agent:        %s\n", cfg.RL.Agent)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "netgym.yaml", "path to the YAML config")
	return cmd
}
