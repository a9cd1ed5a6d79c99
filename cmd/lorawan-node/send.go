package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"avaneesh/lorawan-node/pkg/node"
)

var sendCmd = &cobra.Command{
	Use:   "send [payload]",
	Short: "Join, send one uplink and exit",
	Long: `Joins the network, sends the payload given as argument (or --hex) and waits
until the stack reports the transmission done or failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetUint8("port")
		ack, _ := cmd.Flags().GetBool("ack")
		hexPayload, _ := cmd.Flags().GetString("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		var payload []byte
		switch {
		case hexPayload != "" && len(args) > 0:
			return errors.New("give the payload either as argument or with --hex")
		case hexPayload != "":
			b, err := hex.DecodeString(hexPayload)
			if err != nil {
				return fmt.Errorf("--hex: %w", err)
			}
			payload = b
		case len(args) > 0:
			payload = []byte(args[0])
		default:
			return errors.New("payload required")
		}

		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// A one-shot uplink needs the session first.
		cfg.Node.WaitUntilConnected = true

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result := make(chan error, 1)
		report := func(err error) {
			select {
			case result <- err:
			default:
			}
		}
		callbacks := loggingCallbacks(log)
		callbacks.Transmitted = func() { report(nil) }
		callbacks.TransmissionError = func(err error) { report(err) }

		n, err := openNode(ctx, cfg, log, callbacks)
		if err != nil {
			return err
		}
		defer n.Close()

		if err := n.Send(payload, port, ack); err != nil {
			return err
		}

		select {
		case err := <-result:
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes on port %d\n", len(payload), port)
			return nil
		case <-time.After(timeout):
			return fmt.Errorf("no transmission result after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().Uint8P("port", "p", node.DefaultPort, "Application port")
	sendCmd.Flags().Bool("ack", false, "Send as confirmed uplink")
	sendCmd.Flags().String("hex", "", "Payload as hex instead of the argument")
	sendCmd.Flags().Duration("timeout", 2*time.Minute, "How long to wait for the transmission result")
}
