package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sortie/replay/internal/camera"
	"github.com/sortie/replay/internal/geo"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/pkg/core"
	"github.com/spf13/cobra"
)

var inspectAt []int64

var inspectCmd = &cobra.Command{
	Use:   "inspect <mission.txt>",
	Short: "Print stats of a mission log and its state at given times",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := readMissionLog(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printStats(out, log)
		for _, t := range inspectAt {
			printLogState(out, log, t)
		}
		return nil
	},
}

var cameraAt []int64

var cameraCmd = &cobra.Command{
	Use:   "camera <camera.json>",
	Short: "Evaluate a camera track at given times",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		track, err := readCameraTrack(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "keyframes: %d\n", track.Len())
		if first, last, ok := track.Span(); ok {
			fmt.Fprintf(out, "span: %d..%d ms\n", first, last)
		}
		fmt.Fprintf(out, "path length: %.2f\n", geo.PathLength(track))

		var s camera.Sample
		for _, t := range cameraAt {
			if err := track.EvalInto(t, &s); err != nil {
				return err
			}
			fmt.Fprintf(out, "t=%d %s\n", t, formatSample(s))
		}
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <mission.txt>",
	Short: "Rewrite a mission log in canonical form to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := readMissionLog(args[0])
		if err != nil {
			return err
		}
		_, err = log.WriteTo(cmd.OutOrStdout())
		return err
	},
}

func init() {
	inspectCmd.Flags().Int64SliceVar(&inspectAt, "at", nil, "mission times in ms to evaluate")
	cameraCmd.Flags().Int64SliceVar(&cameraAt, "at", nil, "mission times in ms to evaluate")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(cameraCmd)
	rootCmd.AddCommand(normalizeCmd)
}

// openInput opens path, transparently decompressing .gz files.
func openInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error opening gzip %s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, f}, nil
}

func readMissionLog(path string) (*missionlog.Log, error) {
	r, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return missionlog.NewParser(Logger).Parse(r)
}

func readCameraTrack(path string) (*camera.Track, error) {
	r, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return camera.ReadTrack(r)
}

func printStats(w io.Writer, log *missionlog.Log) {
	s := log.Stats()
	fmt.Fprintf(w, "events: %d (destruct %d, latch %d, onboard %d, waiting %d over %d pads)\n",
		s.Total(), s.Destruct, s.Latch, s.Onboard, s.Waiting, s.Pads)
	if first, last, ok := log.Span(); ok {
		fmt.Fprintf(w, "span: %d..%d ms\n", first, last)
	}
	if d, ok := log.DestructStart(); ok {
		fmt.Fprintf(w, "destruct: %d ms for %d ms, ends %d\n", d.TimeMs, d.DurationMs, d.EndMs())
	}
}

func printLogState(w io.Writer, log *missionlog.Log, t int64) {
	fmt.Fprintf(w, "t=%d\n", t)
	fmt.Fprintf(w, "  countdown: %s\n", formatCountdown(log.CountdownAt(t)))
	fmt.Fprintf(w, "  latch: %s\n", formatLatch(log.PadLatchedPadAt(t)))
	fmt.Fprintf(w, "  onboard: %s\n", formatCount(log.ShipOnboardAt(t)))
	for _, pad := range log.Pads() {
		fmt.Fprintf(w, "  waiting %s: %s\n", pad, formatCount(log.PadWaitingAt(t, pad)))
	}
}

func formatCountdown(c core.Countdown) string {
	switch {
	case c.Active:
		return fmt.Sprintf("active, %d ms left", c.RemainingMs)
	case c.Destroyed:
		return "destroyed"
	case c.BeforeStart:
		return fmt.Sprintf("pending, ends %d", c.EndTimeMs)
	default:
		return "none"
	}
}

func formatLatch(s core.LatchState) string {
	if s.Latched {
		return "latched to " + s.Pad.String()
	}
	return "free"
}

func formatCount(s core.CountState) string {
	return fmt.Sprintf("%d", s.Count)
}

func formatSample(s camera.Sample) string {
	switch s.Mode {
	case camera.KindChase:
		return fmt.Sprintf("%s distance=%.2f", s.Mode, s.ChaseDistance)
	case camera.KindTrack:
		return fmt.Sprintf("%s position=(%.2f, %.2f, %.2f)", s.Mode, s.Position.X, s.Position.Y, s.Position.Z)
	default:
		return fmt.Sprintf("%s position=(%.2f, %.2f, %.2f) pitch=%.2f yaw=%.2f",
			s.Mode, s.Position.X, s.Position.Y, s.Position.Z, s.Pitch, s.Yaw)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
