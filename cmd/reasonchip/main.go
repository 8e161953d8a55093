// Command reasonchip is the broker/worker/client CLI: four subcommands
// (broker, worker, run, run-local) with standardized exit codes and a
// persistent-flag/subcommand/graceful-shutdown pattern.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SouthPatron/reasonchip/internal/config"
	"github.com/SouthPatron/reasonchip/internal/logging"
	"github.com/SouthPatron/reasonchip/internal/tlsopts"
)

var rootCmd = &cobra.Command{
	Use:   "reasonchip",
	Short: "ReasonChip pipeline execution substrate",
	Long:  "reasonchip runs, dispatches, and brokers ReasonChip pipelines.",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "[LOGGER=]LEVEL, e.g. \"info\" or \"broker=debug\"")

	rootCmd.PersistentFlags().String("tls-cert", "", "TLS certificate file")
	rootCmd.PersistentFlags().String("tls-key", "", "TLS private key file")
	rootCmd.PersistentFlags().String("tls-ca", "", "TLS CA bundle for peer verification")
	rootCmd.PersistentFlags().String("tls-min-version", "1.2", "minimum TLS version (1.2 or 1.3)")

	rootCmd.AddCommand(brokerCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runLocalCmd)
}

func main() {
	os.Exit(Execute())
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ec, ok := err.(exitCoded); ok {
			return ec.ExitCode().Int()
		}
		return ExitGeneralError.Int()
	}
	return ExitOK.Int()
}

// exitCoded lets a command's returned error carry a specific ExitCode
// instead of the default GENERAL_ERROR.
type exitCoded interface {
	error
	ExitCode() ExitCode
}

type codedError struct {
	code ExitCode
	err  error
}

func (e *codedError) Error() string      { return e.err.Error() }
func (e *codedError) Unwrap() error      { return e.err }
func (e *codedError) ExitCode() ExitCode { return e.code }

func fail(code ExitCode, format string, args ...any) error {
	return &codedError{code: code, err: fmt.Errorf(format, args...)}
}

// setupLogging parses the --log-level flag ("info", or "broker=debug") into
// the process-wide logging.Context, using a flat namespace->level map.
func setupLogging(cmd *cobra.Command) (*logging.Context, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	def, namespace, level, err := parseLogLevel(raw)
	if err != nil {
		return nil, err
	}

	ctx := logging.New(def)
	if namespace != "" {
		ctx.Levels.Set(namespace, level)
	}
	return ctx, nil
}

// parseLogLevel parses "[LOGGER=]LEVEL". With no "LOGGER=" prefix, the
// level becomes the table's default and namespace is returned empty.
func parseLogLevel(raw string) (def slog.Level, namespace string, level slog.Level, err error) {
	name, levelStr := raw, raw
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			name, levelStr = raw[:i], raw[i+1:]
			break
		}
	}

	lvl, err := parseLevel(levelStr)
	if err != nil {
		return 0, "", 0, err
	}

	if name == levelStr {
		return lvl, "", 0, nil
	}
	return slog.LevelInfo, name, lvl, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// mustGetString reads a string flag known to exist on cmd; cobra only
// returns an error for a flag name that was never registered.
func mustGetString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

// tlsOptionsFromFlags reads the universal SSL option group flags into a
// tlsopts.Options, expanding "${VAR}" references in every path.
func tlsOptionsFromFlags(cmd *cobra.Command) tlsopts.Options {
	cert, _ := cmd.Flags().GetString("tls-cert")
	key, _ := cmd.Flags().GetString("tls-key")
	ca, _ := cmd.Flags().GetString("tls-ca")
	minVersion, _ := cmd.Flags().GetString("tls-min-version")
	return tlsopts.Options{
		CertFile:   config.ExpandEnv(cert),
		KeyFile:    config.ExpandEnv(key),
		CAFile:     config.ExpandEnv(ca),
		MinVersion: minVersion,
	}
}
