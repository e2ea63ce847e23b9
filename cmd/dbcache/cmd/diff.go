package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/dbcache/pkg/di"
	"github.com/ssargent/dbcache/pkg/digest"
)

// diffCmd represents the diff command
var diffCmd = &cobra.Command{
	Use:   "diff <DBCache.bin>",
	Short: "Report entries that are new or changed since the last run",
	Long: `Decode a hotfix container and compare every payload digest with the
digest store in digest_dir. New and changed entries are listed and, unless
--dry-run is given, the digests are committed for the next run.

Example:
  dbcache diff DBCache.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return runDiff(cmd.Context(), deps, args[0], dryRun, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().Bool("dry-run", false, "Do not commit digests")
}

func runDiff(ctx context.Context, c *di.Container, path string, dryRun bool, w io.Writer) error {
	d, err := c.GetDecoder()
	if err != nil {
		return err
	}
	store, err := c.GetDigestStore()
	if err != nil {
		return err
	}

	run, err := d.DecodeFile(ctx, path)
	if err != nil {
		return err
	}

	out := newOutput(w)
	if last, ok, err := store.LastRun(); err != nil {
		return err
	} else if ok {
		out.Log("previous_run", last.ID, "at", last.Time().UTC(), "entries", last.Entries)
	}

	entries, err := store.Diff(run.Results)
	if err != nil {
		return err
	}

	counts := make(map[digest.Change]int)
	for _, e := range entries {
		counts[e.Change]++
		if e.Change == digest.ChangeUnchanged {
			continue
		}
		kv := []interface{}{
			"change", e.Change,
			"push_id", e.Result.Entry.Header.PushID,
			"table", e.Result.Table,
			"record_id", e.Result.Entry.Header.RecordID,
			"digest", e.Result.Digest,
		}
		if e.Change == digest.ChangeChanged {
			kv = append(kv, "previous", e.Previous)
		}
		out.Log(kv...)
	}
	out.Log(
		"run_id", run.Summary.RunID,
		"new", counts[digest.ChangeNew],
		"changed", counts[digest.ChangeChanged],
		"unchanged", counts[digest.ChangeUnchanged],
	)

	if dryRun {
		return nil
	}
	return store.Commit(run.Summary.RunID, entries)
}
