package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/QuiteYellow/Listie.md-sub001/internal/config"
	"github.com/QuiteYellow/Listie.md-sub001/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			fatal("%v", err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fatal("render config: %v", err)
		}
		fmt.Print(string(out))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Run: func(cmd *cobra.Command, args []string) {
		path := flagConfig
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.WriteDefault(path); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
