package cmd

import (
	"fmt"
	goruntime "runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/seedgate/seedgate/pkg/runtime"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints the version, commit hash, build date and go version of the seedgate binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version:    %s\n", runtime.Version)
		fmt.Printf("Commit:     %s\n", runtime.GitCommit)
		fmt.Printf("Build Time: %s\n", buildTime(runtime.Timestamp))
		fmt.Printf("Go:         %s %s/%s\n", goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
	},
	DisableFlagsInUseLine: true,
}

// buildTime formats a unix timestamp, other values are returned as they are.
func buildTime(timestamp string) string {
	unixTime, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return timestamp
	}
	return time.Unix(unixTime, 0).UTC().Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
