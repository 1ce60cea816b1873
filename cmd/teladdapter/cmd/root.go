package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/katu09161004/tel-addapter/internal/pipeline"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "teladdapter",
	Short: "Record landline calls, transcribe them, and archive the records",
	Long: `Tel-Addapter records landline calls through a USB audio adapter,
transcribes them with a remote speech-to-text service, and archives the
audio and transcript in a version-controlled repository.

Run without a subcommand for the interactive prompt, or use the record,
transcribe, and serve subcommands directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "configuration file path")
}

func runInteractive() error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("Tel-Addapter call record system")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  r, record      start recording the next call")
	fmt.Println("  t, transcribe  transcribe an existing audio file")
	fmt.Println("  c, config      show the active configuration")
	fmt.Println("  q, quit        exit")
	fmt.Println("")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "q", "quit", "exit":
			return nil

		case "r", "record":
			if err := recordOnce(a); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}

		case "t", "transcribe":
			fmt.Print("audio file> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			path := strings.TrimSpace(scanner.Text())
			if path == "" {
				continue
			}
			run, err := a.orchestrator.TranscribeFile(context.Background(), path)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				continue
			}
			printRun(run)

		case "c", "config":
			fmt.Printf("  transcription: %s\n", a.config.Transcription.Provider)
			fmt.Printf("  engine:        %s\n", a.config.Transcription.AmiVoiceEngine)
			fmt.Printf("  archive:       %s/%s (%s)\n", a.config.Archive.Owner, a.config.Archive.Repo, a.config.Archive.Branch)
			fmt.Printf("  archive path:  %s\n", a.config.Archive.Path)
			fmt.Printf("  device:        %s\n", a.config.Recording.Device)

		case "":
			// Empty line, re-prompt.

		default:
			fmt.Println("Unknown command")
		}
	}
}

// recordOnce captures a single call. Ctrl-C ends the recording; the
// transcription and archive stages still run to completion.
func recordOnce(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Recording, press Ctrl-C to stop")
	run, err := a.orchestrator.RunOnce(ctx)
	if err != nil {
		return err
	}
	printRun(run)
	return nil
}

func printRun(run *pipeline.Run) {
	if run.State == pipeline.StateWaiting {
		fmt.Println("No audio captured")
		return
	}

	fmt.Println("")
	fmt.Println("=== Transcript ===")
	fmt.Println(run.Result.Text)
	fmt.Printf("(confidence %.2f, duration %.1fs)\n", run.Result.Confidence, run.Recording.Duration.Seconds())
	fmt.Println("")
	fmt.Printf("  audio:      %s\n", run.Recording.AudioPath)
	fmt.Printf("  transcript: %s\n", run.TranscriptPath)
	if run.AudioArchive != nil {
		fmt.Printf("  archived:   %s @ %s\n", run.AudioArchive.RemotePath, run.AudioArchive.Revision)
	}
	if run.TranscriptArchive != nil {
		fmt.Printf("  archived:   %s @ %s\n", run.TranscriptArchive.RemotePath, run.TranscriptArchive.Revision)
	}
	fmt.Println("")
}
