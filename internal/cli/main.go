package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := newRootCommand()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "recapcut <input>",
		Short:        "Cut a sampled recap clip from a local video and write a narration script",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SilenceErrors = true

	// Shared by every subcommand
	root.PersistentFlags().String("config", "", "Config file (default recapcut.yaml if present)")
	root.PersistentFlags().String("stats-db", "", "Usage statistics database")

	// Visible flags
	root.Flags().String("out", "", "Output directory")
	root.Flags().StringP("description", "d", "", "What happens in the video")
	root.Flags().Int("duration", 0, "Target recap duration in seconds")
	root.Flags().Int("interval", 0, "Seconds between sampled segments")
	root.Flags().Int("capture", 0, "Seconds captured from each segment")
	root.Flags().String("language", "", "Script language")
	root.Flags().String("log-file", "", "Also write logs to a rotating file")
	root.Flags().String("log-level", "", "Log level (debug, info, warn, error)")

	// Hidden tuning flag (internal)
	root.Flags().Bool("no-pause", false, "Skip the pauses between the final stages")
	_ = root.Flags().MarkHidden("no-pause")

	root.AddCommand(statsCommand(), rateCommand())
	return root
}
