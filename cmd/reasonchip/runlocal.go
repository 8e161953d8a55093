package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/SouthPatron/reasonchip/internal/chips"
	"github.com/SouthPatron/reasonchip/internal/shutdown"
	"github.com/SouthPatron/reasonchip/pkg/chip"
	"github.com/SouthPatron/reasonchip/pkg/engine"
)

var runLocalCmd = &cobra.Command{
	Use:   "run-local <pipeline>",
	Short: "Run a pipeline in-process, with no broker or transport at all",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunLocal,
}

func init() {
	runLocalCmd.Flags().StringArray("collection", nil, "name=path pipeline collection root, repeatable")
	runLocalCmd.Flags().StringArray("var", nil, "key=json-value variable, repeatable")
}

func runRunLocal(cmd *cobra.Command, args []string) error {
	logCtx, err := setupLogging(cmd)
	if err != nil {
		return fail(ExitInvalidArgs, "log level: %w", err)
	}

	collectionFlags, _ := cmd.Flags().GetStringArray("collection")
	varFlags, _ := cmd.Flags().GetStringArray("var")

	variables, err := parseVars(varFlags)
	if err != nil {
		return fail(ExitInvalidArgs, "run-local: %w", err)
	}

	registry := chip.NewRegistry()
	if err := chips.DiscoverAll(registry); err != nil {
		return fail(ExitConfigError, "run-local: discovering built-in chips: %w", err)
	}

	col, err := loadNamedCollections(collectionFlags)
	if err != nil {
		return fail(ExitConfigError, "run-local: %w", err)
	}

	eng := engine.New(registry, logCtx.For("engine"))
	if err := eng.LoadCollection(col); err != nil {
		return fail(ExitConfigError, "run-local: %w", err)
	}

	sentinel := shutdown.New()
	defer sentinel.Stop()

	result, err := eng.Run(sentinel.Context(), args[0], variables)
	if err != nil {
		doc := map[string]any{"rc": "ERROR", "error": err.Error()}
		_ = json.NewEncoder(os.Stdout).Encode(doc)
		return fail(ExitRemoteError, "run-local: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"rc": "OK", "result": result})
	return nil
}
