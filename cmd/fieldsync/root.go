package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline job cache and sync agent for roofing field crews",
		Long: `fieldsync keeps the crew's assigned jobs, photos, check-ins and time logs
on the device while there is no signal, and pushes them to the roofing
backend once connectivity returns.

Configuration comes from the environment, optionally seeded from the YAML
file named by FIELDSYNC_CONFIG.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newSyncCmd(),
		newStatusCmd(),
		newClearCmd(),
		newExportCmd(),
	)
	return root
}
