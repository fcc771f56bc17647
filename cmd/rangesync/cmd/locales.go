package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var localesCmd = &cobra.Command{
	Use:   "locales",
	Short: "List the server's species label locales",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newClient()
		locales, err := client.Locales(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(locales)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tLABEL")
		for _, l := range locales {
			fmt.Fprintf(w, "%s\t%s\n", l.Code, l.Label)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(localesCmd)
}
