package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seedgate/seedgate/pkg/config"
	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/manager"
	"github.com/seedgate/seedgate/pkg/notification"
	"github.com/seedgate/seedgate/pkg/runtime"
	"github.com/seedgate/seedgate/pkg/stringutils"
)

var (
	// Global flags
	flagLogLevel   = 0
	flagConfigFile = "config.yaml"
	flagLogFile    = "activity.log"

	// Global vars
	log         *logrus.Entry
	initialized bool
)

var rootCmd = &cobra.Command{
	Use:   "seedgate",
	Short: "A seedbox retention and admission policy engine",
	Long: `A CLI application that decides whether a torrent may be added to a tracker
and which seeding torrents can be removed from your torrent clients.
`,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Parse persistent flags
	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", flagConfigFile, "Config file")
	rootCmd.PersistentFlags().StringVarP(&flagLogFile, "log", "l", flagLogFile, "Log file")
	rootCmd.PersistentFlags().CountVarP(&flagLogLevel, "verbose", "v", "Verbose level")
}

func initCore(showAppInfo bool) {
	// Set core variables
	log = logger.GetLogger("app")

	// Init Logging
	if err := logger.Init(flagLogLevel, flagLogFile); err != nil {
		log.WithError(err).Fatal("Failed to initialize logging")
	}

	// Init Config
	if err := config.Init(flagConfigFile); err != nil {
		log.WithError(err).Fatal("Failed to initialize config")
	}

	// Show using
	if showAppInfo {
		showUsing()
	}
}

func showUsing() {
	log.Infof("Using %s = %s (%s@%s)", stringutils.LeftJust("VERSION", " ", 10),
		runtime.Version, runtime.GitCommit, runtime.Timestamp)

	config.ShowUsing()

	log.Infof("Using %s = %q", stringutils.LeftJust("LOG", " ", 10), flagLogFile)
	log.Infof("Using %s = %s", stringutils.LeftJust("VERBOSITY", " ", 10), logrus.GetLevel().String())
}

// newManager builds the clients, trackers and notifier of the loaded configuration.
func newManager() *manager.Manager {
	clients, err := config.Config.BuildClients()
	if err != nil {
		log.WithError(err).Fatal("Failed initializing clients")
	}

	trackers, err := config.Config.BuildTrackers()
	if err != nil {
		log.WithError(err).Fatal("Failed initializing trackers")
	}

	var opts []manager.Option
	if config.Config.Notifications.Service.Discord.Enabled() {
		opts = append(opts, manager.WithNotifier(
			notification.NewDiscordSender(logger.GetLogger("notification"), config.Config.Notifications)))
	}

	return manager.New(clients, trackers, opts...)
}
