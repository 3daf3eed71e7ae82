package cmd

import (
	"github.com/spf13/cobra"

	"github.com/seedgate/seedgate/pkg/config"
	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the manage and check operations over http",
	Long: `This command starts an http server.
GET / runs a sweep (add ?delete=1 to remove torrents), POST / checks a {"client","tracker","size"} body.`,

	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// init core
		if !initialized {
			initCore(true)
			initialized = true
		}

		// set log
		log := logger.GetLogger("serve")

		srv := server.New(config.Config.Server.Addr(), newManager())
		if err := srv.ListenAndServe(cmd.Context()); err != nil {
			log.WithError(err).Fatal("Server failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
