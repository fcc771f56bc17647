package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aviarylabs/rangesync/pkg/reconcile"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [query]",
	Short: "Search the full species catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		items, err := client.FullCatalog(cmd.Context())
		if err != nil {
			return err
		}

		if len(args) == 1 {
			query := strings.ToLower(args[0])
			filtered := items[:0]
			for _, item := range items {
				if strings.Contains(strings.ToLower(item.DisplayName), query) ||
					strings.Contains(strings.ToLower(item.ID), query) {
					filtered = append(filtered, item)
				}
			}
			items = filtered
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDISPLAY NAME")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\n", item.ID, item.DisplayName)
		}
		return w.Flush()
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the candidate count for the committed settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newClient()
		count, err := client.BaselineCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d species pass the committed range filter\n", count)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates for the configured location and threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, client, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		in := e.ReconcileInputs()
		if in.Location.Unset() {
			fmt.Fprintln(os.Stderr, "Location is not configured; set coordinates first")
			return nil
		}
		resp, err := client.ListCandidates(ctx, reconcile.CatalogRequest{
			Latitude:  in.Location.Latitude,
			Longitude: in.Location.Longitude,
			Threshold: in.Threshold,
			Mode:      in.Mode,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COMMON NAME\tSCIENTIFIC NAME\tSCORE")
		for _, entry := range resp.Entries {
			fmt.Fprintf(w, "%s\t%s\t%g\n", entry.CommonName, entry.ScientificName, entry.Score)
		}
		return w.Flush()
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the selectable candidate source modes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := newClient()
		options, err := client.SourceOptions(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(options)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VALUE\tLABEL")
		for _, o := range options {
			fmt.Fprintf(w, "%s\t%s\n", o.Value, o.Label)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(sourcesCmd)
}
