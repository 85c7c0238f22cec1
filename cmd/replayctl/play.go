package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/internal/replay"
	"github.com/sortie/replay/pkg/core"
	"github.com/spf13/cobra"
)

var (
	playStep     int64
	playFrom     int64
	playSpeed    float64
	playFrames   bool
	playRealtime bool
)

var playCmd = &cobra.Command{
	Use:   "play <attemptID | mission.txt [camera.json]>",
	Short: "Play back an attempt and print the facts that change",
	Long: `Plays a stored attempt, or a mission log file with an optional camera
track, on a virtual clock. Every change of countdown, latch, onboard and
waiting counts is printed as it happens.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		log, track, err := playSource(cmd, args)
		if err != nil {
			return err
		}

		d, err := replay.New(log, track)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		d.AddListener(printListener(out))
		if cmd.Flags().Changed("from") {
			d.Seek(playFrom)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var wait time.Duration
		if playRealtime && playSpeed > 0 {
			wait = time.Duration(float64(playStep) / playSpeed * float64(time.Millisecond))
		}

		err = d.Run(ctx, playStep, func(f *replay.Frame) error {
			if playFrames && f.HasCamera {
				fmt.Fprintf(out, "%8d camera %s\n", f.TimeMs, formatSample(f.Camera))
			}
			if wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	playCmd.Flags().Int64Var(&playStep, "step", 100, "virtual ms per frame")
	playCmd.Flags().Int64Var(&playFrom, "from", 0, "start time in ms (defaults to the first event)")
	playCmd.Flags().Float64Var(&playSpeed, "speed", 1, "playback speed when --realtime is set")
	playCmd.Flags().BoolVar(&playFrames, "frames", false, "print the camera sample of every frame")
	playCmd.Flags().BoolVar(&playRealtime, "realtime", false, "pace frames on the wall clock")

	rootCmd.AddCommand(playCmd)
}

// playSource resolves the arguments to a mission log and camera track.
// Existing files win over attempt ids.
func playSource(cmd *cobra.Command, args []string) (log *missionlog.Log, track *camera.Track, err error) {
	if fileExists(args[0]) {
		if log, err = readMissionLog(args[0]); err != nil {
			return nil, nil, err
		}
		if len(args) == 2 {
			if track, err = readCameraTrack(args[1]); err != nil {
				return nil, nil, err
			}
		}
		return log, track, nil
	}
	if len(args) == 2 {
		return nil, nil, fmt.Errorf("mission log %s not found", args[0])
	}

	backend, err := openStorage(Logger)
	if err != nil {
		return nil, nil, err
	}
	defer func() { err = errors.Join(err, backend.Close()) }()

	a, err := loadAttempt(cmd.Context(), backend, args[0])
	if err != nil {
		return nil, nil, err
	}
	return a.Log, a.Track, nil
}

func printListener(w io.Writer) replay.Listener {
	return replay.ListenerFuncs{
		Countdown: func(t int64, c core.Countdown) {
			fmt.Fprintf(w, "%8d countdown %s\n", t, formatCountdown(c))
		},
		Latch: func(t int64, s core.LatchState) {
			fmt.Fprintf(w, "%8d latch %s\n", t, formatLatch(s))
		},
		Onboard: func(t int64, s core.CountState) {
			fmt.Fprintf(w, "%8d onboard %s\n", t, formatCount(s))
		},
		Waiting: func(t int64, pad core.PadKey, s core.CountState) {
			fmt.Fprintf(w, "%8d waiting %s %s\n", t, pad, formatCount(s))
		},
	}
}
