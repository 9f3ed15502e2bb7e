// Package config assembles the listener's runtime configuration from CLI
// flags and environment variables around a root cobra.Command.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultBindAddr   = "0.0.0.0"
	defaultBindPort   = "53"
	portEnvVar        = "RECURSOR_PORT"
	defaultPoolSize   = 32
	defaultExchangeTO = 3 * time.Second
	defaultBudget     = 10 * time.Second
	defaultLogLevel   = "info"
)

// Config is the listener's fully resolved runtime configuration.
type Config struct {
	BindAddr        string
	BindPort        string
	WorkerPoolSize  int
	ExchangeTimeout time.Duration
	ResolveBudget   time.Duration
	LogLevel        string
	MetricsAddr     string
}

// BindAddress returns "host:port" for the UDP listener.
func (c Config) BindAddress() string {
	return c.BindAddr + ":" + c.BindPort
}

// Parse builds a Config from args, applying the RECURSOR_PORT environment
// override when no --port flag is given explicitly. run receives the
// parsed Config and is invoked by cobra's Execute.
func Parse(args []string, run func(Config) error) error {
	cfg := Config{
		BindAddr:        defaultBindAddr,
		BindPort:        defaultBindPort,
		WorkerPoolSize:  defaultPoolSize,
		ExchangeTimeout: defaultExchangeTO,
		ResolveBudget:   defaultBudget,
		LogLevel:        defaultLogLevel,
		MetricsAddr:     ":9153",
	}
	if envPort := os.Getenv(portEnvVar); envPort != "" {
		cfg.BindPort = envPort
	}

	cmd := &cobra.Command{
		Use:           "recursorsd",
		Short:         "Recursive DNS resolver daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "address to listen on")
	flags.StringVar(&cfg.BindPort, "port", cfg.BindPort, fmt.Sprintf("UDP port to listen on (overrides %s)", portEnvVar))
	flags.IntVar(&cfg.WorkerPoolSize, "workers", cfg.WorkerPoolSize, "maximum concurrent client queries")
	flags.DurationVar(&cfg.ExchangeTimeout, "exchange-timeout", cfg.ExchangeTimeout, "per-exchange upstream timeout")
	flags.DurationVar(&cfg.ResolveBudget, "resolve-budget", cfg.ResolveBudget, "wall-clock budget for one client query")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logrus level (debug, info, warn, error)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics on")

	// cobra reads os.Args when handed a nil slice; an empty slice keeps
	// Parse(nil, ...) limited to the arguments it was given.
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	return cmd.Execute()
}
