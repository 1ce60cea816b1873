package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// recordCmd runs continuous capture mode.
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record calls continuously until interrupted",
	Long: `Record calls continuously. Each Ctrl-C ends the current recording and
runs the transcription and archive stages to completion before the
process exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.orchestrator.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(recordCmd)
}
