package main

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/SouthPatron/reasonchip/internal/config"
	"github.com/SouthPatron/reasonchip/internal/shutdown"
	"github.com/SouthPatron/reasonchip/pkg/broker"
	"github.com/SouthPatron/reasonchip/pkg/transport/tcp"
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run a broker with a client listener and a worker listener",
	RunE:  runBroker,
}

func init() {
	brokerCmd.Flags().String("client-addr", "tcp://0.0.0.0:9100", "listener URI for clients")
	brokerCmd.Flags().String("worker-addr", "tcp://0.0.0.0:9101", "listener URI for workers")
	brokerCmd.Flags().String("http-addr", "", "optional introspection HTTP listener (metrics, healthz, status)")
}

func runBroker(cmd *cobra.Command, args []string) error {
	logCtx, err := setupLogging(cmd)
	if err != nil {
		return fail(ExitInvalidArgs, "log level: %w", err)
	}

	clientAddr := config.ExpandEnv(mustGetString(cmd, "client-addr"))
	workerAddr := config.ExpandEnv(mustGetString(cmd, "worker-addr"))
	httpAddr := config.ExpandEnv(mustGetString(cmd, "http-addr"))

	tlsOpts := tlsOptionsFromFlags(cmd)
	tlsConfig, err := tlsOpts.ServerConfig()
	if err != nil {
		return fail(ExitConfigError, "tls: %w", err)
	}

	clientListener, err := tcp.Listen(clientAddr, tlsConfig)
	if err != nil {
		return fail(ExitTransportError, "client listener: %w", err)
	}
	defer clientListener.Close()

	workerListener, err := tcp.Listen(workerAddr, tlsConfig)
	if err != nil {
		return fail(ExitTransportError, "worker listener: %w", err)
	}
	defer workerListener.Close()

	logger := logCtx.For("broker")
	b := broker.New(clientListener, workerListener, nil, logger)

	if httpAddr != "" {
		go serveIntrospection(httpAddr, b, logger)
	}

	sentinel := shutdown.New()
	defer sentinel.Stop()

	logger.Info("broker: listening", "clients", clientAddr, "workers", workerAddr)
	if err := b.Serve(sentinel.Context()); err != nil && sentinel.Context().Err() == nil {
		return fail(ExitTransportError, "broker: %w", err)
	}
	return nil
}

func serveIntrospection(addr string, b *broker.Broker, logger *slog.Logger) {
	if err := http.ListenAndServe(addr, b.IntrospectionHandler()); err != nil {
		logger.Warn("broker: introspection server stopped", "err", err)
	}
}
