package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/waypoint/internal/config"
	"github.com/hyperengineering/waypoint/internal/ratio"
	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/transfer"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/types"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <user-id> <category-id> <goal-id>",
	Short: "Export a goal as a transfer document",
	Long:  "Serialize a goal and its full step and todo tree to JSON, suitable for backup or import into another account.",
	Args:  cobra.ExactArgs(3),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Write to file instead of stdout")
}

// openCodec loads config and builds a codec over the local store, for the
// offline transfer commands.
func openCodec(policy transfer.IDPolicy) (*transfer.Codec, *store.SQLiteStore, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, nil, err
	}

	docs, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}

	trees := tree.NewRepository(docs, cfg.Tree.MaxDepth, cfg.Tree.MaxConcurrency)
	ratios := ratio.NewEngine(trees, docs)
	trees.BindRecalculator(ratios)

	return transfer.NewCodec(docs, trees, ratios, policy), docs, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	codec, docs, err := openCodec(transfer.IDPolicyRegenerate)
	if err != nil {
		return err
	}
	defer docs.Close()

	ref := types.GoalRef{UserID: args[0], CategoryID: args[1], GoalID: args[2]}
	doc, err := codec.Export(context.Background(), ref)
	if err != nil {
		return fmt.Errorf("export goal %s: %w", ref.GoalID, err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
