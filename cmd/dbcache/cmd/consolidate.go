package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/di"
	"github.com/ssargent/dbcache/pkg/hotfix"
)

// consolidateCmd represents the consolidate command
var consolidateCmd = &cobra.Command{
	Use:   "consolidate <in> <out>",
	Short: "Write a container holding only the hotfixes still in effect",
	Long: `Apply the validity codes of a hotfix container and write the result.

Void entries are dropped, superseding entries remove every earlier push for
the same record and themselves, and the remaining entries are written in
push id order with the input's version, build and entry shape.

Example:
  dbcache consolidate DBCache.bin DBCache.consolidated.bin`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsolidate(deps, args[0], args[1], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
}

func runConsolidate(c *di.Container, in, outPath string, w io.Writer) error {
	ambiguous, err := c.GetConfig().Ambiguous()
	if err != nil {
		return err
	}
	r, err := container.Open(container.ReaderConfig{FilePath: in, Ambiguous: ambiguous})
	if err != nil {
		return err
	}
	entries, err := r.Entries()
	if err != nil {
		return err
	}

	kept := hotfix.Consolidate(entries)
	upserts, deletes := hotfix.Split(kept)

	h := r.Header()
	cw, err := container.NewWriter(container.WriterConfig{
		FilePath:  outPath,
		Version:   h.Version,
		Build:     h.Build,
		Integrity: h.Integrity,
		Shape:     r.Shape(),
	})
	if err != nil {
		return err
	}
	for _, e := range kept {
		if _, err := cw.Put(e.Header, e.Data); err != nil {
			cw.Close()
			return err
		}
	}
	if err := cw.Close(); err != nil {
		return err
	}

	newOutput(w).Log(
		"in", in,
		"out", outPath,
		"entries", len(entries),
		"kept", len(kept),
		"upserts", len(upserts),
		"deletes", len(deletes),
	)
	return nil
}
