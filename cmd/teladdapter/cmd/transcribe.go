package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// transcribeCmd runs one-shot mode on an existing recording.
var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe and archive an existing WAV recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.orchestrator.TranscribeFile(context.Background(), args[0])
		if err != nil {
			return err
		}
		printRun(run)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transcribeCmd)
}
