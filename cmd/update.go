package cmd

import (
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/seedgate/seedgate/pkg/runtime"
)

const repoSlug = "seedgate/seedgate"

var flagUpdateCheckOnly bool

var updateCmd = &cobra.Command{
	Use:           "update",
	Short:         "Update seedgate",
	Long:          `Update seedgate to the latest release, or only report it with --check.`,
	SilenceUsage:  true,
	SilenceErrors: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		latest, found, err := selfupdate.DetectLatest(cmd.Context(), selfupdate.ParseSlug(repoSlug))
		if err != nil {
			return fmt.Errorf("could not detect latest release: %w", err)
		}

		if !found || latest.LessOrEqual(runtime.Version) {
			fmt.Printf("Already up to date: %s\n", runtime.Version)
			return nil
		}

		if flagUpdateCheckOnly {
			fmt.Printf("Update available: %s -> %s\n", runtime.Version, latest.Version())
			return nil
		}

		release, err := selfupdate.UpdateSelf(cmd.Context(), runtime.Version, selfupdate.ParseSlug(repoSlug))
		if err != nil {
			return fmt.Errorf("could not update binary: %w", err)
		}

		fmt.Printf("Successfully updated to version: %s\n", release.Version())
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&flagUpdateCheckOnly, "check", false, "Only report whether an update is available")

	rootCmd.AddCommand(updateCmd)
}
