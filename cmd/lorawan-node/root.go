package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"avaneesh/lorawan-node/pkg/config"
	"avaneesh/lorawan-node/pkg/node"
)

var rootCmd = &cobra.Command{
	Use:   "lorawan-node",
	Short: "LoRaWAN end-device node driving a modem",
	Long: `lorawan-node joins a LoRaWAN network through a modem attached over TCP, QUIC
or a serial port, and exchanges uplinks and downlinks with the network server.`,
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
	rootCmd.PersistentFlags().StringP("config", "c", "lorawan-node.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
}

// loadConfig reads the file named by --config and installs the default logger
func loadConfig(cmd *cobra.Command) (config.Config, node.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func newLogger(level string) (node.Logger, error) {
	lvl, err := node.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	log := node.NewTextLogger(os.Stderr, lvl)
	node.SetLogger(log)
	return log, nil
}
