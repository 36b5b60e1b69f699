package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roofmanager/fieldsync/internal/timecalc"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached jobs, queued records and the last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			snap := a.cache.Snapshot()

			fmt.Fprintf(out, "Jobs cached:        %d\n", len(snap.Jobs))
			fmt.Fprintf(out, "Photos queued:      %d\n", len(a.cache.UnsyncedPhotos()))
			fmt.Fprintf(out, "Check-ins queued:   %d\n", len(a.cache.UnsyncedCheckIns()))
			fmt.Fprintf(out, "Time logs queued:   %d\n", len(a.cache.UnsyncedTimeLogs()))

			if active := snap.ActiveTimeLog; active != nil {
				elapsed := timecalc.Hours(active.StartTime, time.Now())
				fmt.Fprintf(out, "Timer running:      job %s, %s\n", active.JobID, timecalc.FormatHours(elapsed))
			} else {
				fmt.Fprintln(out, "Timer running:      no")
			}

			latest, err := a.runs.Latest(cmd.Context())
			if err != nil {
				return err
			}
			switch {
			case latest == nil:
				fmt.Fprintln(out, "Last sync:          never")
			case latest.Error != "":
				fmt.Fprintf(out, "Last sync:          %s (failed: %s)\n", latest.StartedAt.Local().Format(time.DateTime), latest.Error)
			default:
				fmt.Fprintf(out, "Last sync:          %s (%d pushed, %d failed)\n", latest.StartedAt.Local().Format(time.DateTime), latest.Pushed, latest.Failed)
			}
			return nil
		},
	}
}
