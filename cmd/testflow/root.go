package main

import (
	"fmt"
	"os"

	"github.com/aretw0/testflow/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "testflow",
	Short: "Testflow edits, lays out and runs API test flows",
	Long: `Testflow manages visual API test flows: directed graphs of requests,
assertions, conditions and loops. It validates and lays out flows, runs them
through an orchestrator and records run reports.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	registerPersistentFlags(rootCmd.PersistentFlags())
}

func registerPersistentFlags(pf *pflag.FlagSet) {
	pf.String("config", cli.ConfigFile, "Project configuration file")
	pf.String("store", "", "Storage backend: file, loam, redis or http")
	pf.String("dir", "", "Directory of the file or loam store")
	pf.String("format", "", "File store format: json or yaml")
	pf.String("redis-addr", "", "Redis address for the redis store")
	pf.String("url", "", "Base URL of the http store")
	pf.String("orchestrator", "", "Orchestrator URL (http(s) for SSE, ws(s) for WebSocket)")
	pf.String("token", "", "Bearer token for the http store and orchestrator")
	pf.String("log-format", "", "Log format: text or json")
	pf.Bool("debug", false, "Enable debug logging")
}

// flagKeys maps persistent flags onto configuration paths.
var flagKeys = map[string][2]string{
	"store":        {"store", "type"},
	"dir":          {"store", "dir"},
	"format":       {"store", "format"},
	"redis-addr":   {"store", "redis_addr"},
	"url":          {"store", "url"},
	"orchestrator": {"orchestrator", "url"},
	"log-format":   {"log", "format"},
}

// loadConfig reads the project file and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (*cli.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := cli.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	overrides := map[string]any{}
	set := func(section, key string, v any) {
		m, _ := overrides[section].(map[string]any)
		if m == nil {
			m = map[string]any{}
			overrides[section] = m
		}
		m[key] = v
	}
	for name, target := range flagKeys {
		if flags.Changed(name) {
			v, _ := flags.GetString(name)
			set(target[0], target[1], v)
		}
	}
	if flags.Changed("token") {
		v, _ := flags.GetString("token")
		set("store", "token", v)
		set("orchestrator", "token", v)
	}
	if debug, _ := flags.GetBool("debug"); debug {
		set("log", "level", "debug")
	}

	if err := cfg.Merge(overrides); err != nil {
		return nil, fmt.Errorf("apply flags: %w", err)
	}
	return cfg, nil
}

// openBackend builds the configured store, orchestrator and logger.
func openBackend(cmd *cobra.Command) (*cli.Config, *cli.Backend, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	b, err := cli.Open(cfg, cli.NewLogger(cfg.Log))
	if err != nil {
		return nil, nil, err
	}
	return cfg, b, nil
}
