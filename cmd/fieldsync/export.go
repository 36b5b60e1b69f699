package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roofmanager/fieldsync/internal/timesheet"
)

func newExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export completed time logs as an xlsx timesheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			logs := a.cache.TimeLogs()
			if err := timesheet.Write(f, logs, a.cache.Jobs(), loc); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d time logs to %s\n", len(logs), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "timesheet.xlsx", "Output file")
	return cmd
}
