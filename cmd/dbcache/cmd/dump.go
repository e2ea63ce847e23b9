package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/ssargent/dbcache/pkg/codec"
	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/decoder"
	"github.com/ssargent/dbcache/pkg/di"
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <DBCache.bin>",
	Short: "List the entries of a hotfix container",
	Long: `List every entry of a DBCache.bin hotfix container, one line per entry:
push id, table, record id, status and payload digest.

With --keys the payloads are decoded as well and trailing sub-records,
such as encryption keys appended to a record, are reported.

Examples:
  dbcache dump DBCache.bin
  dbcache dump --keys --schema-dir ./definitions DBCache.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, _ := cmd.Flags().GetBool("keys")
		if keys {
			return runDecode(cmd.Context(), deps, args[0], cmd.OutOrStdout())
		}
		return runDump(deps, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().BoolP("keys", "k", false, "Decode payloads and report trailing sub-records")
}

// runDump frames the container without decoding payloads
func runDump(c *di.Container, path string, w io.Writer) error {
	ambiguous, err := c.GetConfig().Ambiguous()
	if err != nil {
		return err
	}
	idx, err := c.GetRegistry().Index()
	if err != nil {
		return err
	}

	r, err := container.Open(container.ReaderConfig{FilePath: path, Ambiguous: ambiguous})
	if err != nil {
		return err
	}

	out := newOutput(w)
	out.Log("version", r.Version(), "shape", r.Shape(), "build", r.Build())

	it := r.Iterator()
	defer it.Close()
	n := 0
	for it.Next() {
		e := it.Entry()
		table, ok := idx.Lookup(e.Header.TableHash)
		if !ok {
			table = fmt.Sprintf("%08X", e.Header.TableHash)
		}
		out.Log(
			"push_id", e.Header.PushID,
			"table", table,
			"record_id", e.Header.RecordID,
			"status", e.Header.Status,
			"size", len(e.Data),
			"digest", decoder.Digest(e.Data),
		)
		n++
	}
	if err := it.Err(); err != nil {
		return err
	}
	out.Log("entries", n)
	return nil
}

// runDecode decodes every payload and reports per-record outcomes
func runDecode(ctx context.Context, c *di.Container, path string, w io.Writer) error {
	d, err := c.GetDecoder()
	if err != nil {
		return err
	}
	run, err := d.DecodeFile(ctx, path)
	if err != nil {
		return err
	}
	writeRun(newOutput(w), run)
	if !run.Summary.OK() {
		return errNothingDecoded
	}
	return nil
}

func writeRun(out log.Logger, run *decoder.Run) {
	for _, res := range run.Results {
		kv := []interface{}{
			"push_id", res.Entry.Header.PushID,
			"table", res.Table,
			"record_id", res.Entry.Header.RecordID,
			"status", res.Entry.Header.Status,
			"outcome", outcome(res),
		}
		if res.Drift != nil {
			kv = append(kv, "drift", res.Drift.Kind())
			if tr := res.Drift.Trailing; tr != nil && tr.Table != "" {
				kv = append(kv, "extra_table", tr.Table)
				kv = append(kv, compactFields(tr.Fields)...)
			}
		}
		if res.Err != nil {
			kv = append(kv, "err", res.Err)
		}
		out.Log(kv...)
	}

	s := run.Summary
	out.Log(
		"run_id", s.RunID,
		"source", s.Source,
		"build", s.Build,
		"entries", s.Entries,
		"decoded", s.Decoded,
		"empty", s.Empty,
		"raw", s.Raw,
		"failed", s.Failed,
		"trailing", s.Trailing,
	)
}

func outcome(res *decoder.Result) string {
	switch {
	case res.Decoded():
		return "decoded"
	case res.Err == nil:
		return "empty"
	case res.Record != nil:
		return "failed"
	default:
		return "raw"
	}
}

// compactFields flattens fields to key/value pairs, joining the elements of
// byte arrays into one hex value
func compactFields(fields []codec.Field) []interface{} {
	var kv []interface{}
	var hexName string
	var hex strings.Builder
	flush := func() {
		if hexName != "" {
			kv = append(kv, hexName, hex.String())
			hexName = ""
			hex.Reset()
		}
	}

	for _, f := range fields {
		base := f.Name
		if i := strings.IndexByte(base, '['); i > 0 {
			base = base[:i]
		}
		if b, ok := f.Value.(uint8); ok && base != f.Name {
			if base != hexName {
				flush()
				hexName = base
			}
			fmt.Fprintf(&hex, "%02X", b)
			continue
		}
		flush()
		kv = append(kv, f.Name, f.Value)
	}
	flush()
	return kv
}
