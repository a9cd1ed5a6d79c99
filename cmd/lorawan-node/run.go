package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"avaneesh/lorawan-node/pkg/bridge"
	"avaneesh/lorawan-node/pkg/config"
	"avaneesh/lorawan-node/pkg/modem"
	"avaneesh/lorawan-node/pkg/node"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the network and serve uplinks until interrupted",
	Long: `Opens the modem transport, joins the network and keeps the node running.
With a Redis address configured, uplink requests are taken from Redis and
downlinks and lifecycle events are published there.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runNode(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(ctx context.Context, cfg config.Config, log node.Logger) error {
	callbacks := loggingCallbacks(log)

	var (
		br  *bridge.Bridge
		rdb *backend.Client
	)
	if cfg.Redis.Address != "" {
		rdb = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Redis.Address, err)
		}
		br = bridge.New(rdb, bridge.Config{
			UplinkList:      cfg.Redis.UplinkList,
			DownlinkChannel: cfg.Redis.DownlinkChannel,
			EventChannel:    cfg.Redis.EventChannel,
			Logger:          log,
		})
		callbacks = br.Callbacks()
	}

	n, err := openNode(ctx, cfg, log, callbacks)
	if err != nil {
		return err
	}
	defer n.Close()

	serverErrors := make(chan error, 1)
	if cfg.Metrics.Address != "" {
		srv := metricsServer(cfg.Metrics, n)
		go func() {
			log.Info("Serving metrics on %s%s", cfg.Metrics.Address, cfg.Metrics.Path)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- err
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	bridgeErrors := make(chan error, 1)
	if br != nil {
		go func() { bridgeErrors <- br.Run(ctx, n) }()
	}

	log.Info("Node %s running", n.ID())

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		return nil
	case <-n.Done():
		log.Info("Node stopped after leaving the network")
		return nil
	case err := <-serverErrors:
		return fmt.Errorf("metrics server: %w", err)
	case err := <-bridgeErrors:
		if err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		return nil
	}
}

// openNode connects to the modem and builds the node on top of it
func openNode(ctx context.Context, cfg config.Config, log node.Logger, callbacks node.Callbacks) (*node.Node, error) {
	ch, err := openChannel(cfg.Transport, cfg.Transport.Server, log)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}

	stack := modem.NewClient(ch, modem.Config{
		Name:            cfg.Transport.Kind,
		ResponseTimeout: cfg.Transport.ResponseTimeout.Std(),
		Logger:          log,
	})

	nc, err := cfg.NodeConfig()
	if err != nil {
		stack.Close()
		return nil, err
	}
	nc.Logger = log
	nc.Callbacks = callbacks

	joinCtx := ctx
	if timeout := cfg.Node.JoinTimeout.Std(); timeout > 0 {
		var cancel context.CancelFunc
		joinCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	n, err := node.New(joinCtx, stack, nc)
	if err != nil {
		stack.Close()
		return nil, err
	}
	return n, nil
}

func metricsServer(cfg config.Metrics, n *node.Node) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		node.NewCollector(n, nil),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func loggingCallbacks(log node.Logger) node.Callbacks {
	return node.Callbacks{
		Received: func(data []byte, port uint8) {
			log.Info("Downlink on port %d: % X", port, data)
		},
		TransmissionError: func(err error) {
			log.Warn("Uplink failed: %v", err)
		},
		ReceptionError: func(err error) {
			log.Warn("Downlink failed: %v", err)
		},
		UplinkRequired: func() {
			log.Info("Network server asked for an uplink")
		},
	}
}
