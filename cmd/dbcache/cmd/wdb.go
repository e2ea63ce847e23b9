package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/dbcache/pkg/di"
)

// wdbCmd represents the wdb command
var wdbCmd = &cobra.Command{
	Use:   "wdb <file.wdb>",
	Short: "Decode a per-type .wdb cache",
	Long: `Decode the records of a .wdb cache (creaturecache.wdb, questcache.wdb, ...).

The table is chosen from the cache identifier and the schema version from
the record version in the cache header.

Example:
  dbcache wdb --schema-dir ./definitions creaturecache.wdb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWDB(cmd.Context(), deps, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(wdbCmd)
}

func runWDB(ctx context.Context, c *di.Container, path string, w io.Writer) error {
	d, err := c.GetDecoder()
	if err != nil {
		return err
	}
	run, err := d.DecodeWDBFile(ctx, path)
	if err != nil {
		return err
	}
	writeRun(newOutput(w), run)
	if !run.Summary.OK() {
		return errNothingDecoded
	}
	return nil
}
