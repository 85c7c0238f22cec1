package missionlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sortie/replay/pkg/core"
)

// FormatVersion is written as the version= line of every serialized log.
const FormatVersion = 1

const header = "[Mission]"

// Line keys of the text format.
const (
	keyVersion       = "version"
	keyDestructStart = "destructStart"
	keyPadLatchOn    = "padLatchOn"
	keyPadLatchOff   = "padLatchOff"
	keyShipOnboard   = "shipOnboard"
	keyPadWaiting    = "padWaiting"
)

// MarshalText renders the log in its canonical text form. Two logs holding
// the same events always render byte-identically.
func (l *Log) MarshalText() ([]byte, error) {
	return l.appendText(nil), nil
}

// String returns the canonical text form.
func (l *Log) String() string {
	return string(l.appendText(nil))
}

// WriteTo writes the canonical text form to w.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(l.appendText(nil))
	if err != nil {
		return int64(n), fmt.Errorf("failed to write mission log: %w", err)
	}
	return int64(n), nil
}

func (l *Log) appendText(b []byte) []byte {
	emit := func(key string, fields ...int64) {
		b = append(b, key...)
		b = append(b, '=')
		for i, f := range fields {
			if i > 0 {
				b = append(b, ',')
			}
			b = strconv.AppendInt(b, f, 10)
		}
		b = append(b, '\n')
	}

	b = append(b, header+"\n"...)
	emit(keyVersion, FormatVersion)

	if d, ok := l.DestructStart(); ok {
		emit(keyDestructStart, d.TimeMs, d.DurationMs)
	}
	for _, e := range l.latch.Events() {
		if e.Value.on {
			emit(keyPadLatchOn, e.TimeMs, int64(e.Value.pad.StructureID), int64(e.Value.pad.BlockIndex))
		} else {
			emit(keyPadLatchOff, e.TimeMs)
		}
	}
	for _, e := range l.onboard.Events() {
		emit(keyShipOnboard, e.TimeMs, int64(e.Value))
	}
	for _, pad := range l.Pads() {
		for _, e := range l.waiting[pad].Events() {
			emit(keyPadWaiting, e.TimeMs, int64(pad.StructureID), int64(pad.BlockIndex), int64(e.Value))
		}
	}
	return b
}

// Parser reads the text form back into a Log.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser that reports skipped lines to logger.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse reads a log with the default logger.
func Parse(r io.Reader) (*Log, error) {
	return NewParser(nil).Parse(r)
}

// ParseString parses a log held in memory.
func ParseString(s string) (*Log, error) {
	return Parse(strings.NewReader(s))
}

// UnmarshalText replaces l's contents with the parsed text.
func (l *Log) UnmarshalText(b []byte) error {
	return NewParser(nil).ParseInto(l, bytes.NewReader(b))
}

// Parse reads a new log from r. The result is not recording.
func (p *Parser) Parse(r io.Reader) (*Log, error) {
	l := New()
	if err := p.ParseInto(l, r); err != nil {
		return nil, err
	}
	return l, nil
}

// ParseInto clears l and fills it from r. Malformed and oversize lines are skipped one
// at a time; only read errors abort. Afterwards l is not recording, every
// channel is time-sorted and every query cache is fresh.
func (p *Parser) ParseInto(l *Log, r io.Reader) error {
	l.Clear()

	br := bufio.NewReader(r)
	lineNo := 0
	skipped := 0
	for {
		raw, tooLong, err := readLine(br)
		if len(raw) > 0 || tooLong {
			lineNo++
			if tooLong {
				skipped++
				p.logger.Debug("Skipping mission log line", "line", lineNo, "error", "line too long")
			} else if line := strings.TrimSpace(string(raw)); line != "" && line[0] != '#' && line[0] != '[' {
				if perr := l.parseLine(line); perr != nil {
					skipped++
					p.logger.Debug("Skipping mission log line", "line", lineNo, "error", perr)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading mission log: %w", err)
		}
	}

	l.latch.Sort()
	l.onboard.Sort()
	for _, c := range l.waiting {
		c.Sort()
	}
	l.resetCaches()
	l.recording = false

	if skipped > 0 {
		p.logger.Warn("Mission log parsed with skipped lines", "skipped", skipped, "lines", lineNo)
	}
	return nil
}

// maxLineLength bounds a single line. Longer lines are dropped.
const maxLineLength = 64 * 1024

// readLine returns the next line including its terminator. A line over
// maxLineLength is consumed and reported with tooLong set and no text.
func readLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineLength {
				line, tooLong = nil, true
			} else {
				line = append(line, chunk...)
			}
		}
		if err != bufio.ErrBufferFull {
			return line, tooLong, err
		}
	}
}

// parseLine applies one key=value line to l. Events are stored exactly as
// written; deduplication only applies to live writes.
func (l *Log) parseLine(line string) error {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("missing '=' in %q", line)
	}
	key = strings.TrimSpace(key)

	want := 0
	switch key {
	case keyVersion:
		return nil
	case keyPadLatchOff:
		want = 1
	case keyDestructStart, keyShipOnboard:
		want = 2
	case keyPadLatchOn:
		want = 3
	case keyPadWaiting:
		want = 4
	default:
		return fmt.Errorf("unknown key %q", key)
	}

	f, err := parseFields(value, want)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	switch key {
	case keyDestructStart:
		if !l.hasDestruct {
			l.destruct.TimeMs, l.destruct.DurationMs = f[0], f[1]
			l.hasDestruct = true
		}
	case keyPadLatchOn:
		l.latch.Force(f[0], latch{on: true, pad: padKey(f[1], f[2])})
	case keyPadLatchOff:
		l.latch.Force(f[0], latch{})
	case keyShipOnboard:
		l.onboard.Force(f[0], int(f[1]))
	case keyPadWaiting:
		l.waitingChannel(padKey(f[1], f[2])).Force(f[0], int(f[3]))
	}
	return nil
}

func padKey(structureID, blockIndex int64) core.PadKey {
	return core.PadKey{StructureID: int(structureID), BlockIndex: int(blockIndex)}
}

// parseFields splits a comma-separated list and parses the first want
// entries as integers. Extra trailing fields are ignored.
func parseFields(value string, want int) ([]int64, error) {
	parts := strings.Split(value, ",")
	if len(parts) < want {
		return nil, fmt.Errorf("expected %d fields, got %d", want, len(parts))
	}
	out := make([]int64, want)
	for i := range want {
		v, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
