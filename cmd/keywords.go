// File: cmd/keywords.go
package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/kwdriver/internal/keywords"
)

func newKeywordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "List the keywords available to scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEYWORD\tARGS\tDESCRIPTION")
			for _, def := range keywords.Default().Definitions() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Name, strings.Join(def.Args, ","), def.Description)
			}
			return tw.Flush()
		},
	}
}
