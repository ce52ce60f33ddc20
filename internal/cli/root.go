package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Strangers/internal/ui"
	"github.com/BioHazard786/Strangers/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "strangers",
	Short: "Chat with a random stranger from your terminal",
	Long: `Strangers pairs you with another random person who is waiting to chat.
Messages go peer-to-peer over WebRTC when a direct connection can be made
and through the matchmaking server otherwise. Skip to meet someone new.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and runs it.
// It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(chatCmd, statsCmd)
}
