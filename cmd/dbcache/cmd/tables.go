package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/dbcache/pkg/di"
	"github.com/ssargent/dbcache/pkg/schema"
)

// tablesCmd represents the tables command
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the hash of every known table",
	Long: `Print the table hash of every table that has a schema file. Containers
reference tables by these hashes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTables(deps, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(c *di.Container, w io.Writer) error {
	names, err := c.GetRegistry().Tables()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(w, "%08X  %s\n", schema.TableHash(name), name)
	}
	return nil
}
