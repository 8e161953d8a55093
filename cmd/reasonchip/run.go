package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SouthPatron/reasonchip/internal/config"
	"github.com/SouthPatron/reasonchip/internal/shutdown"
	"github.com/SouthPatron/reasonchip/pkg/client"
	"github.com/SouthPatron/reasonchip/pkg/packet"
	"github.com/SouthPatron/reasonchip/pkg/transport/tcp"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline>",
	Short: "Run a pipeline against a broker and print its result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("broker-addr", "", "client-facing broker listener URI (required)")
	runCmd.Flags().StringArray("var", nil, "key=json-value variable, repeatable")
}

func runRun(cmd *cobra.Command, args []string) error {
	logCtx, err := setupLogging(cmd)
	if err != nil {
		return fail(ExitInvalidArgs, "log level: %w", err)
	}

	brokerAddr := config.ExpandEnv(mustGetString(cmd, "broker-addr"))
	if brokerAddr == "" {
		return fail(ExitInvalidArgs, "run: --broker-addr is required")
	}
	varFlags, _ := cmd.Flags().GetStringArray("var")

	variables, err := parseVars(varFlags)
	if err != nil {
		return fail(ExitInvalidArgs, "run: %w", err)
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
		return fail(ExitTransportError, "run: dialing broker: %w", err)
	}
	defer conn.Close()

	logger := logCtx.For("run")
	mux := client.New(conn)
	go mux.Run(sentinel.Context())

	result, err := client.RunPipeline(sentinel.Context(), mux, args[0], variables)
	if err != nil {
		return fail(ExitTransportError, "run: %w", err)
	}

	code := printRunResult(result)
	logger.Debug("run: finished", "rc", result.RC.String())
	if code != ExitOK {
		return fail(code, "run: %s: %s", result.RC.String(), result.Error)
	}
	return nil
}

// printRunResult emits the user-visible JSON result document to stdout
// and returns the exit code the outcome maps to.
func printRunResult(result *client.RunResult) ExitCode {
	doc := map[string]any{"rc": result.RC.String()}
	if result.RC == packet.OK {
		doc["result"] = result.Result
	} else {
		doc["error"] = result.Error
		if result.Stacktrace != "" {
			doc["stacktrace"] = result.Stacktrace
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(doc)

	switch result.RC {
	case packet.OK:
		return ExitOK
	case packet.CANCELLED:
		return ExitCancelled
	default:
		return ExitRemoteError
	}
}

// parseVars parses a set of "key=json-value" flags into a variables map,
// falling back to a bare string when a value doesn't parse as JSON.
func parseVars(specs []string) (map[string]any, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	vars := make(map[string]any, len(specs))
	for _, spec := range specs {
		key, raw, ok := splitNameEqualsPath(spec)
		if !ok {
			return nil, fmt.Errorf("--var %q: expected key=value", spec)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		vars[key] = value
	}
	return vars, nil
}
