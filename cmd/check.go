package cmd

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/torrentfile"
)

var (
	flagCheckClient  string
	flagCheckTracker string
	flagCheckSize    int64
	flagCheckTorrent string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a torrent may be added to a tracker",
	Long: `This command checks the admission rules of a tracker on a client for a torrent of the given size.
It exits with status 0 when the torrent is accepted and 1 when it is rejected.`,

	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// init core
		if !initialized {
			initCore(false)
			initialized = true
		}

		// set log
		log := logger.GetLogger("check")

		size := flagCheckSize
		if flagCheckTorrent != "" {
			f, err := torrentfile.Load(flagCheckTorrent)
			if err != nil {
				log.WithError(err).Fatalf("Failed reading torrent file: %s", flagCheckTorrent)
			}

			log.Debugf("Loaded %q (%s, %d files, infohash %s)", f.Name,
				humanize.IBytes(uint64(f.SizeBytes)), f.Files, f.InfoHash)
			size = f.SizeBytes
		}

		ok, reason, err := newManager().Check(cmd.Context(), flagCheckClient, flagCheckTracker, size)
		if err != nil {
			log.WithError(err).Fatal("Failed checking torrent")
		}

		if !ok {
			log.Warnf("Rejected: %s", reason)
			os.Exit(1)
		}

		log.Info("Accepted")
	},
}

func init() {
	checkCmd.Flags().StringVar(&flagCheckClient, "client", "", "Client to add the torrent to")
	checkCmd.Flags().StringVar(&flagCheckTracker, "tracker", "", "Tracker of the torrent")
	checkCmd.Flags().Int64Var(&flagCheckSize, "size", 0, "Size of the torrent in bytes")
	checkCmd.Flags().StringVar(&flagCheckTorrent, "torrent", "", "Read the size from a .torrent file")

	_ = checkCmd.MarkFlagRequired("client")
	_ = checkCmd.MarkFlagRequired("tracker")
	checkCmd.MarkFlagsOneRequired("size", "torrent")
	checkCmd.MarkFlagsMutuallyExclusive("size", "torrent")

	rootCmd.AddCommand(checkCmd)
}
