package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/ports/adapters/sqlite"
)

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show how many recaps were created and the average rating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStats(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recaps created: %d\n", st.RecapsCreated)
			fmt.Fprintf(out, "average rating: %.1f/5 (%d ratings)\n", st.AverageRating(), st.RatingCount)
			return nil
		},
	}
}

func rateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <1-5>",
		Short: "Rate the tool from 1 to 5 stars",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid rating %q: must be a number from %d to %d", args[0], sqlite.MinRating, sqlite.MaxRating)
			}
			store, err := openStats(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.AddRating(cmd.Context(), n); err != nil {
				return errors.New(userMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Thanks for rating!")
			return nil
		},
	}
}

func openStats(cmd *cobra.Command) (*sqlite.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Stats.DB == "" {
		return nil, errors.New("no stats database configured (set --stats-db or RECAPCUT_STATS_DB)")
	}
	return sqlite.Open(cfg.Stats.DB)
}
