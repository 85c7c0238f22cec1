package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/sortie/replay/internal/storage"
	filestorage "github.com/sortie/replay/internal/storage/file"
	"github.com/sortie/replay/internal/worker"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <stem|file>...",
	Short: "Copy attempts saved as files into the configured backend",
	Long: `Each argument is an attempt stem or any of its files
(<stem>.mission.txt, <stem>.camera.json, <stem>.summary.json, optionally .gz).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		backend, err := openStorage(Logger)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, backend.Close()) }()

		ctx := cmd.Context()
		for _, arg := range args {
			a, err := filestorage.LoadStem(filestorage.TrimSuffix(arg), Logger)
			if err != nil {
				return err
			}
			if err := backend.SaveAttempt(ctx, a); err != nil {
				return fmt.Errorf("failed to import %s: %w", arg, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s)\n", a.Summary.AttemptID, a.Summary.MissionID)
		}
		return nil
	},
}

var listBest bool

var listCmd = &cobra.Command{
	Use:   "list [missionID]",
	Short: "List stored attempts, oldest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		missionID := ""
		if len(args) == 1 {
			missionID = args[0]
		}

		backend, err := openStorage(Logger)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, backend.Close()) }()

		summaries, err := backend.ListAttempts(cmd.Context(), missionID)
		if err != nil {
			return err
		}

		if listBest {
			best, ok := worker.Fastest(summaries)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no completed attempts")
				return nil
			}
			summaries = summaries[:0]
			summaries = append(summaries, best)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ATTEMPT\tMISSION\tSTARTED\tDURATION\tOUTCOME\tSCORE")
		for _, s := range summaries {
			score := "-"
			if s.Score != nil {
				score = fmt.Sprintf("%d", *s.Score)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.AttemptID, s.MissionID, s.StartedAt.Format(time.RFC3339),
				time.Duration(s.DurationMs)*time.Millisecond, s.Outcome, score)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <attemptID>",
	Short: "Print a stored attempt's summary and log stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		backend, err := openStorage(Logger)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, backend.Close()) }()

		a, err := loadAttempt(cmd.Context(), backend, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "attempt: %s\nmission: %s\nstarted: %s\nduration: %d ms\noutcome: %s\n",
			a.Summary.AttemptID, a.Summary.MissionID, a.Summary.StartedAt.Format(time.RFC3339),
			a.Summary.DurationMs, a.Summary.Outcome)
		printStats(out, a.Log)
		fmt.Fprintf(out, "keyframes: %d\n", a.Track.Len())
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listBest, "best", false, "show only the fastest completed attempt")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}

func loadAttempt(ctx context.Context, backend storage.Backend, id string) (*storage.Attempt, error) {
	a, err := backend.LoadAttempt(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("no attempt %q in %s storage", id, storageType())
	}
	return a, err
}
