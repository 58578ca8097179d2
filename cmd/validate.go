package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/app/plugins"
	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/internal/scenario"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the configuration and build every planned scenario without running it",
	RunE:  runValidate,
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List dispatcher policies, report handlers and metrics sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(plugins.List())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(pluginsCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := plugins.NewDispatcher(cfg.Dispatcher); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	stateCfg, err := cfg.Sim.State()
	if err != nil {
		return err
	}
	rn, err := cfg.Network.Build()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, spec := range cfg.Plan() {
		file, err := scenario.Load(spec.Scenario)
		if err != nil {
			return err
		}
		sc, err := scenario.Build(file, stateCfg, rn)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d vehicles, %d stations, %d bases, %d requests\n",
			sc.Name, len(sc.Sim.Vehicles()), len(sc.Sim.Stations()), len(sc.Sim.Bases()), len(sc.Requests))
	}
	return nil
}
