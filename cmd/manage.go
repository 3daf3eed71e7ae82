package cmd

import (
	"github.com/spf13/cobra"

	"github.com/seedgate/seedgate/pkg/logger"
)

var flagDelete bool

var manageCmd = &cobra.Command{
	Use:   "manage",
	Short: "List torrents that can be removed from every client",
	Long: `This command lists, for every client and enabled tracker, the torrents that satisfy the
tracker requirements or carry a clearable tracker error. Pass --delete to remove them.`,

	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// init core
		if !initialized {
			initCore(true)
			initialized = true
		}

		// set log
		log := logger.GetLogger("manage")

		report, err := newManager().Manage(cmd.Context(), flagDelete)
		if err != nil {
			log.WithError(err).Fatal("Failed managing torrents")
		}

		if unavailable := report.Unavailable(); len(unavailable) > 0 {
			log.Warnf("Skipped unavailable clients: %v", unavailable)
		}
	},
}

func init() {
	manageCmd.Flags().BoolVar(&flagDelete, "delete", false, "Remove the listed torrents")

	rootCmd.AddCommand(manageCmd)
}
