package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/waypoint/internal/transfer"
	"github.com/hyperengineering/waypoint/internal/types"
)

var importPreserveIDs bool

var importCmd = &cobra.Command{
	Use:   "import <user-id> <category-id> [file]",
	Short: "Import a transfer document as a new goal",
	Long:  "Materialize a transfer document into the given category. Reads from the file argument or from stdin.",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importPreserveIDs, "preserve-ids", false,
		"Keep the ids carried in the document instead of generating fresh ones")
}

func runImport(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 3 {
		f, err := os.Open(args[2])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var doc types.TransferDocument
	if err := json.NewDecoder(in).Decode(&doc); err != nil {
		return fmt.Errorf("decode transfer document: %w", err)
	}

	policy := transfer.IDPolicyRegenerate
	if importPreserveIDs {
		policy = transfer.IDPolicyPreserve
	}
	codec, docs, err := openCodec(policy)
	if err != nil {
		return err
	}
	defer docs.Close()

	ref := types.CategoryRef{UserID: args[0], CategoryID: args[1]}
	goalID, err := codec.Import(context.Background(), ref, doc)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported goal %q into category %q\n", goalID, ref.CategoryID)
	return nil
}
