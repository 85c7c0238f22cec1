package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sortie/replay/internal/config"
	"github.com/sortie/replay/internal/dispatcher"
	"github.com/sortie/replay/internal/influx"
	"github.com/sortie/replay/internal/monitor"
	"github.com/sortie/replay/internal/session"
	"github.com/sortie/replay/internal/util"
	"github.com/sortie/replay/internal/worker"
	"github.com/sortie/replay/pkg/core"
	"github.com/spf13/cobra"
)

var (
	recordStrict bool
	recordBest   string
	recordStatus string
)

var recordCmd = &cobra.Command{
	Use:   "record [commands-file]",
	Short: "Record attempts from a command stream and store them",
	Long: `Reads one command per line, "CMD|arg|arg", from the file or stdin:

  START|missionId
  DESTRUCT|timeMs|durationMs
  LATCH_ON|timeMs|structureId|blockIndex
  LATCH_OFF|timeMs
  ONBOARD|timeMs|count[|force]
  WAITING|timeMs|structureId|blockIndex|count
  CAMERA|timeMs|jumpTo[|transitionTo|transitionType]
  FINISH|timeMs|outcome[|score]
  LOAD_BEST|missionId

Blank lines and lines starting with # are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			r, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			in = r
		}

		backend, err := openStorage(Logger)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, backend.Close()) }()

		publisher, err := openPublisher(cmd)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, publisher.Close()) }()

		d, err := dispatcher.New(Logger)
		if err != nil {
			return fmt.Errorf("failed to create dispatcher: %w", err)
		}

		manager := worker.NewManager(worker.Dependencies{
			Recorder: session.NewRecorder(session.Options{
				Recording: config.GetBool("recording.enabled"),
				Logger:    Logger,
			}),
			Context:     missionContext,
			Publisher:   publisher,
			Logger:      Logger,
			SaveTimeout: 30 * time.Second,
		}, backend)
		manager.RegisterHandlers(d)

		if recordBest != "" {
			if _, err := d.Dispatch(dispatcher.Event{Command: worker.CmdLoadBest, Args: []string{recordBest}}); err != nil {
				Logger.Warn("Failed to load best attempt", "missionId", recordBest, "error", err)
			}
		}

		if recordStatus != "" {
			status := monitor.NewService(monitor.Dependencies{
				Logger:         Logger,
				MissionContext: missionContext,
				Worker:         manager,
				Backend:        backend,
				StatusPath:     recordStatus,
			})
			if err := status.Start(); err != nil {
				return err
			}
			defer status.Stop()
		}

		runErr := feedCommands(in, d, cmd.OutOrStdout())
		d.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "saved %d attempts\n", manager.Saved())
		return runErr
	},
}

func init() {
	recordCmd.Flags().BoolVar(&recordStrict, "strict", false, "stop at the first rejected command")
	recordCmd.Flags().StringVar(&recordBest, "best", "", "preload the best stored attempt of this mission")
	recordCmd.Flags().StringVar(&recordStatus, "status", "", "write recorder status JSON to this file every second")

	rootCmd.AddCommand(recordCmd)
}

// feedCommands dispatches each line of r in order.
func feedCommands(r io.Reader, d *dispatcher.Dispatcher, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		command, args := util.SplitCommand(scanner.Text())
		if command == "" {
			continue
		}

		res, err := d.Dispatch(dispatcher.Event{
			Command:   command,
			Args:      args,
			Timestamp: time.Now(),
		})
		if err != nil {
			if recordStrict {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			Logger.Warn("Command rejected", "line", lineNo, "command", command, "error", err)
			continue
		}

		if s, ok := res.(core.FlightSummary); ok && command == worker.CmdFinish {
			fmt.Fprintf(out, "finished %s %s in %d ms\n", s.AttemptID, s.Outcome, s.DurationMs)
		}
	}
	return scanner.Err()
}

func openPublisher(cmd *cobra.Command) (*influx.Publisher, error) {
	cfg := config.GetInfluxConfig()
	backupPath := ""
	if cfg.Enabled {
		logsDir := config.GetString("logsDir")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs dir: %w", err)
		}
		backupPath = filepath.Join(logsDir, fmt.Sprintf("%s.%s.influx.gz", appName, sessionStart.Format("20060102_150405")))
	}

	p := influx.New(cfg, backupPath, Logger)
	if !p.Enabled() {
		return p, nil
	}
	if err := p.Connect(cmd.Context()); err != nil {
		return nil, err
	}
	return p, nil
}
