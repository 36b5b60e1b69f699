package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.syncer == nil {
				return errSyncDisabled
			}

			run, err := a.syncer.Sync(cmd.Context())
			if run != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s\n", run.ID)
				fmt.Fprintf(out, "  Jobs fetched: %d\n", run.JobsFetched)
				fmt.Fprintf(out, "  Pushed:       %d\n", run.Pushed)
				fmt.Fprintf(out, "  Failed:       %d\n", run.Failed)
			}
			return err
		},
	}
}
