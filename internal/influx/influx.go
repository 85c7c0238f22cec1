// Package influx publishes one point per finished attempt to InfluxDB,
// falling back to a gzipped line-protocol file when the server is down.
package influx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/klauspost/compress/gzip"
	"github.com/sortie/replay/internal/config"
	"github.com/sortie/replay/internal/missionlog"
	"github.com/sortie/replay/pkg/core"
)

// Measurement is the name of the per-attempt measurement.
const Measurement = "attempt"

// ErrNotConnected is returned by Publish before a successful Connect.
var ErrNotConnected = errors.New("influx publisher not connected")

// Publisher writes attempt points. A disabled publisher accepts every call
// and writes nothing.
type Publisher struct {
	cfg        config.InfluxConfig
	backupPath string
	logger     *slog.Logger

	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	valid  bool

	backupFile   io.Closer
	backupWriter *gzip.Writer
}

// New creates a publisher. backupPath receives line protocol when the
// server cannot be reached; empty disables the fallback.
func New(cfg config.InfluxConfig, backupPath string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, backupPath: backupPath, logger: logger}
}

// Enabled reports whether publishing is configured on.
func (p *Publisher) Enabled() bool {
	return p.cfg.Enabled
}

// Connect pings the server and prepares the bucket writer, or opens the
// backup file if the server is unreachable.
func (p *Publisher) Connect(ctx context.Context) error {
	if !p.cfg.Enabled {
		return nil
	}

	p.client = influxdb2.NewClientWithOptions(
		p.cfg.URL(),
		p.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)

	running, err := p.client.Ping(ctx)
	if err != nil || !running {
		p.client.Close()
		p.client = nil
		if p.backupPath == "" {
			return fmt.Errorf("influxdb unreachable at %s: %w", p.cfg.URL(), err)
		}
		p.logger.Warn("InfluxDB unreachable, writing points to backup file",
			"url", p.cfg.URL(), "backupPath", p.backupPath, "error", err)
		return p.openBackup()
	}

	if err := p.ensureBucket(ctx); err != nil {
		return err
	}

	p.writer = p.client.WriteAPI(p.cfg.Org, p.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			p.logger.Error("Error sending data to InfluxDB", "bucket", p.cfg.Bucket, "error", writeErr)
		}
	}(p.writer.Errors())

	p.valid = true
	p.logger.Info("InfluxDB client initialized", "url", p.cfg.URL(), "bucket", p.cfg.Bucket)
	return nil
}

func (p *Publisher) openBackup() error {
	file, err := os.OpenFile(p.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	p.backupFile = file
	p.backupWriter = gzip.NewWriter(file)
	return nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	orgs := p.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, p.cfg.Org)
	if err != nil {
		p.logger.Info("Organization not found, creating", "org", p.cfg.Org)
		org, err = orgs.CreateOrganizationWithName(ctx, p.cfg.Org)
		if err != nil {
			return fmt.Errorf("error creating organization %q: %w", p.cfg.Org, err)
		}
	}

	buckets := p.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, p.cfg.Bucket); err == nil {
		return nil
	}

	p.logger.Info("Bucket not found, creating", "bucket", p.cfg.Bucket)
	rule := domain.RetentionRuleTypeExpire
	_, err = buckets.CreateBucketWithName(ctx, org, p.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: 60 * 60 * 24 * 90, // 90 days
	})
	if err != nil {
		return fmt.Errorf("error creating bucket %q: %w", p.cfg.Bucket, err)
	}
	return nil
}

// NewPoint builds the attempt point. It is tagged by mission and outcome
// and timestamped at the attempt start.
func NewPoint(summary core.FlightSummary, stats missionlog.Stats, pathLength float64) *influxdb2_write.Point {
	fields := map[string]any{
		"duration_ms":      summary.DurationMs,
		"latch_events":     stats.Latch,
		"onboard_events":   stats.Onboard,
		"waiting_events":   stats.Waiting,
		"pads":             stats.Pads,
		"destruct_started": stats.Destruct > 0,
		"camera_path_m":    pathLength,
		"attempt_id":       summary.AttemptID,
	}
	if summary.Score != nil {
		fields["score"] = *summary.Score
	}

	return influxdb2_write.NewPoint(
		Measurement,
		map[string]string{
			"mission": summary.MissionID,
			"outcome": string(summary.Outcome),
		},
		fields,
		summary.StartedAt,
	)
}

// Publish writes the attempt point.
func (p *Publisher) Publish(summary core.FlightSummary, stats missionlog.Stats, pathLength float64) error {
	if !p.cfg.Enabled {
		return nil
	}

	point := NewPoint(summary, stats, pathLength)
	switch {
	case p.valid:
		p.writer.WritePoint(point)
		return nil
	case p.backupWriter != nil:
		// line protocol already ends with a newline
		lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Millisecond)
		if _, err := p.backupWriter.Write([]byte(lineProtocol)); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
		}
		return nil
	default:
		return ErrNotConnected
	}
}

// Close flushes pending points and releases the client or backup file.
func (p *Publisher) Close() error {
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.client != nil {
		p.client.Close()
	}
	if p.backupWriter != nil {
		if err := p.backupWriter.Close(); err != nil {
			return err
		}
		return p.backupFile.Close()
	}
	return nil
}
