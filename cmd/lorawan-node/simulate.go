package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"avaneesh/lorawan-node/pkg/modem"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated modem on the configured transport",
	Long: `Listens on the configured TCP or QUIC address and answers like a modem that
has a network server behind it. Point "run" or "send" at it to try the node
without hardware.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var simCfg modem.SimulatorConfig
		simCfg.JoinDelay, _ = cmd.Flags().GetDuration("join-delay")
		simCfg.TxDelay, _ = cmd.Flags().GetDuration("tx-delay")
		simCfg.JoinFails, _ = cmd.Flags().GetBool("join-fails")
		simCfg.Echo, _ = cmd.Flags().GetBool("echo")
		simCfg.Logger = log

		ch, err := openChannel(cfg.Transport, true, log)
		if err != nil {
			return err
		}
		defer ch.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Simulated modem listening on %s://%s", cfg.Transport.Kind, cfg.Transport.Address)
		return modem.NewSimulator(ch, simCfg).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Duration("join-delay", 0, "Delay before reporting the join result")
	simulateCmd.Flags().Duration("tx-delay", 0, "Delay before reporting TxDone")
	simulateCmd.Flags().Bool("join-fails", false, "Reject every join")
	simulateCmd.Flags().Bool("echo", true, "Answer every uplink with the same payload as downlink")
}
