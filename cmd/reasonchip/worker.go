package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SouthPatron/reasonchip/internal/chips"
	"github.com/SouthPatron/reasonchip/internal/config"
	"github.com/SouthPatron/reasonchip/internal/shutdown"
	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/engine"
	"github.com/SouthPatron/reasonchip/pkg/pipeline"
	"github.com/SouthPatron/reasonchip/pkg/transport/tcp"
	"github.com/SouthPatron/reasonchip/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker against a broker, executing pipelines from one or more collections",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().String("broker-addr", "", "worker-facing broker listener URI (required)")
	workerCmd.Flags().StringArray("collection", nil, "name=path pipeline collection root, repeatable")
	workerCmd.Flags().Int("workers", 4, "concurrent pipeline run capacity")
}

func runWorker(cmd *cobra.Command, args []string) error {
	logCtx, err := setupLogging(cmd)
	if err != nil {
		return fail(ExitInvalidArgs, "log level: %w", err)
	}

	brokerAddr := config.ExpandEnv(mustGetString(cmd, "broker-addr"))
	if brokerAddr == "" {
		return fail(ExitInvalidArgs, "worker: --broker-addr is required")
	}
	collectionFlags, _ := cmd.Flags().GetStringArray("collection")
	capacity, _ := cmd.Flags().GetInt("workers")

	registry := chip.NewRegistry()
	if err := chips.DiscoverAll(registry); err != nil {
		return fail(ExitConfigError, "worker: discovering built-in chips: %w", err)
	}

	col, err := loadNamedCollections(collectionFlags)
	if err != nil {
		return fail(ExitConfigError, "worker: %w", err)
	}

	eng := engine.New(registry, logCtx.For("engine"))
	if err := eng.LoadCollection(col); err != nil {
		return fail(ExitConfigError, "worker: %w", err)
	}

	tlsOpts := tlsOptionsFromFlags(cmd)
	tlsConfig, err := tlsOpts.ClientConfig()
	if err != nil {
		return fail(ExitConfigError, "tls: %w", err)
	}

	sentinel := shutdown.New()
	defer sentinel.Stop()

	conn, err := tcp.NewDialer(tlsConfig).Dial(sentinel.Context(), brokerAddr)
	if err != nil {
		return fail(ExitTransportError, "worker: dialing broker: %w", err)
	}
	defer conn.Close()

	logger := logCtx.For("worker")
	tm := worker.New(conn, eng, capacity, logger)

	logger.Info("worker: connected", "broker", brokerAddr, "capacity", capacity, "pipelines", col.Len())
	if err := tm.Serve(sentinel.Context()); err != nil && sentinel.Context().Err() == nil {
		return fail(ExitTransportError, "worker: %w", err)
	}
	return nil
}

// loadNamedCollections parses a set of "name=path" flags, loads each path as
// a pipeline collection, and namespaces every pipeline under "name.", since
// pipeline.Load derives names purely from a root's own directory structure
// and has no notion of the root's own collection name.
func loadNamedCollections(specs []string) (*pipeline.Collection, error) {
	merged := pipeline.NewCollection(nil)
	for _, spec := range specs {
		name, path, ok := splitNameEqualsPath(spec)
		if !ok {
			return nil, fmt.Errorf("--collection %q: expected name=path", spec)
		}
		path = config.ExpandEnv(path)

		col, err := pipeline.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading collection %q from %s: %w", name, path, err)
		}

		merged = merged.Merge(namespaceCollection(name, col))
	}
	return merged, nil
}

// namespaceCollection prefixes every pipeline in col with "prefix.".
func namespaceCollection(prefix string, col *pipeline.Collection) *pipeline.Collection {
	namespaced := make(map[string]*pipeline.Pipeline, col.Len())
	for _, p := range col.All() {
		name := prefix + "." + p.Name
		namespaced[name] = &pipeline.Pipeline{Name: name, Tasks: p.Tasks}
	}
	return pipeline.NewCollection(namespaced)
}

func splitNameEqualsPath(spec string) (name, path string, ok bool) {
	i := strings.IndexByte(spec, '=')
	if i < 0 {
		return "", "", false
	}
	return spec[:i], spec[i+1:], true
}
