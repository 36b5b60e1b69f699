package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all offline data, including unsynced records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear offline data without --yes")
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			unsynced := len(a.cache.UnsyncedPhotos()) + len(a.cache.UnsyncedCheckIns()) + len(a.cache.UnsyncedTimeLogs())
			if err := a.service.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Offline data cleared (%d unsynced records discarded)\n", unsynced)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm that unsynced records will be lost")
	return cmd
}
