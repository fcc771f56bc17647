package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aviarylabs/rangesync/pkg/export"
	"github.com/aviarylabs/rangesync/pkg/reconcile"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the reconciled candidate list as CSV",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "output", "o", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, _, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Pipeline().Run(ctx); err != nil {
		return err
	}

	state := e.Pipeline().State()
	if state.Phase != reconcile.PhaseReady {
		return fmt.Errorf("reconciliation ended in %s: %s", state.Phase, state.Err)
	}

	dir := exportDir
	if dir == "" {
		dir = cfg.ExportDir
	}
	path, err := export.WriteFile(afero.NewOsFs(), dir, state.Snapshot)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d candidates to %s\n", state.Snapshot.AdmittedCount, path)
	return nil
}
